// Package entities exposes the database tables managed by the dashboard.
package entities

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNotFound indicates the entity or field does not exist.
var ErrNotFound = errors.New("entities: not found")

// FieldType is the dashboard type of a column.
type FieldType string

// Field types.
const (
	FieldText          FieldType = "text"
	FieldNumber        FieldType = "number"
	FieldBoolean       FieldType = "boolean"
	FieldDateTime      FieldType = "datetime"
	FieldJSON          FieldType = "json"
	FieldSelection     FieldType = "selection"
	FieldSelectionEnum FieldType = "selection-enum"
)

// Field is one column of an entity.
type Field struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	EnumOptions []string  `json:"enumOptions,omitempty"`
}

// Entity is a table exposed to the dashboard.
type Entity struct {
	Slug   string  `json:"slug"`
	Label  string  `json:"label"`
	Fields []Field `json:"fields"`
}

// Field returns the field called name.
func (e Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Summary is the listing form of an entity.
type Summary struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// Option is a selectable value of a field.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
	Color string `json:"color,omitempty"`
}

// humanize turns a column or table name into a label. Casers keep state, so
// each call gets its own.
func humanize(name string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}
