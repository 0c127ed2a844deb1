// Package schemaform describes configuration forms and validates submitted
// values against them by compiling each form to a JSON Schema.
package schemaform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FieldType is the input control of a field.
type FieldType string

// Field types.
const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypePassword FieldType = "password"
	TypeEmail    FieldType = "email"
	TypeURL      FieldType = "url"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeJSON     FieldType = "json"
)

// ValidationType names a field constraint.
type ValidationType string

// Constraints understood by the compiler.
const (
	Required  ValidationType = "required"
	MinLength ValidationType = "minLength"
	MaxLength ValidationType = "maxLength"
	Min       ValidationType = "min"
	Max       ValidationType = "max"
	Regex     ValidationType = "regex"
	IsEmail   ValidationType = "isEmail"
	IsURL     ValidationType = "isUrl"
)

// FieldValidation is one constraint on a field. Constraint carries the
// parameter of length, range and regex constraints.
type FieldValidation struct {
	ValidationType ValidationType `json:"validationType"`
	Constraint     any            `json:"constraint,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
}

// Field describes one form input.
type Field struct {
	Name        string            `json:"-"`
	Type        FieldType         `json:"type"`
	Label       string            `json:"label,omitempty"`
	Validations []FieldValidation `json:"validations"`
}

// Schema is an ordered form description.
type Schema []Field

// MarshalJSON renders the schema as an object keyed by field name, keeping
// field order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		if field.Validations == nil {
			field.Validations = []FieldValidation{}
		}
		value, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Field returns the field called name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Secrets lists the password fields, which are masked when shown.
func (s Schema) Secrets() []string {
	var out []string
	for _, f := range s {
		if f.Type == TypePassword {
			out = append(out, f.Name)
		}
	}
	return out
}

// jsonSchema converts the form to a JSON Schema document.
func (s Schema) jsonSchema() (map[string]any, error) {
	properties := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	seen := make(map[string]struct{}, len(s))
	for _, field := range s {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return nil, fmt.Errorf("schemaform: field without name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("schemaform: duplicate field %q", name)
		}
		seen[name] = struct{}{}

		prop, err := fieldSchema(field)
		if err != nil {
			return nil, fmt.Errorf("schemaform: field %q: %w", name, err)
		}
		for _, v := range field.Validations {
			if v.ValidationType == Required {
				required = append(required, name)
			}
		}
		properties[name] = prop
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, nil
}

func fieldSchema(field Field) (map[string]any, error) {
	prop := map[string]any{}
	switch field.Type {
	case TypeText, TypeTextarea, TypePassword, "":
		prop["type"] = "string"
	case TypeEmail:
		prop["type"] = "string"
		prop["format"] = "email"
	case TypeURL:
		prop["type"] = "string"
		prop["format"] = "uri"
	case TypeNumber:
		prop["type"] = "number"
	case TypeBoolean:
		prop["type"] = "boolean"
	case TypeJSON:
	default:
		return nil, fmt.Errorf("unknown type %q", field.Type)
	}
	for _, v := range field.Validations {
		switch v.ValidationType {
		case Required:
			if prop["type"] == "string" {
				prop["minLength"] = 1
			}
		case MinLength, MaxLength, Min, Max:
			n, ok := number(v.Constraint)
			if !ok {
				return nil, fmt.Errorf("%s needs a numeric constraint", v.ValidationType)
			}
			key := map[ValidationType]string{MinLength: "minLength", MaxLength: "maxLength", Min: "minimum", Max: "maximum"}[v.ValidationType]
			prop[key] = n
		case Regex:
			pattern, ok := v.Constraint.(string)
			if !ok || pattern == "" {
				return nil, fmt.Errorf("regex needs a pattern")
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return nil, fmt.Errorf("regex: %w", err)
			}
			prop["pattern"] = pattern
		case IsEmail:
			prop["format"] = "email"
		case IsURL:
			prop["format"] = "uri"
		default:
			return nil, fmt.Errorf("unknown validation %q", v.ValidationType)
		}
	}
	return prop, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
