package schemaform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// InvalidError reports field level failures, keyed by field name.
type InvalidError struct {
	Validations map[string]string
}

func (e *InvalidError) Error() string {
	fields := make([]string, 0, len(e.Validations))
	for f := range e.Validations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "schemaform: invalid fields: " + strings.Join(fields, ", ")
}

// Compiled is a schema ready to validate configuration values.
type Compiled struct {
	form     Schema
	schema   *jsonschema.Schema
	printer  *message.Printer
	messages map[string]map[ValidationType]string // by field, then validation type
}

// Compiler compiles form schemas. Messages are rendered in the compiler's language.
type Compiler struct {
	printer *message.Printer
}

// NewCompiler returns a Compiler rendering messages in lang.
func NewCompiler(lang language.Tag) *Compiler {
	return &Compiler{printer: message.NewPrinter(lang)}
}

// Compile turns form into a validator. It fails on unknown field types,
// unknown constraints and malformed regexes.
func (c *Compiler) Compile(name string, form Schema) (*Compiled, error) {
	doc, err := form.jsonSchema()
	if err != nil {
		return nil, err
	}
	// Round trip through the library decoder so numbers carry its representation.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schemaform: marshal %s: %w", name, err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("schemaform: parse %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	compiler.AssertFormat()
	url := "mem://schemaform/" + name + ".json"
	if err := compiler.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("schemaform: add %s: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schemaform: compile %s: %w", name, err)
	}

	messages := make(map[string]map[ValidationType]string)
	for _, f := range form {
		for _, v := range f.Validations {
			if v.ErrorMessage == "" {
				continue
			}
			if messages[f.Name] == nil {
				messages[f.Name] = make(map[ValidationType]string)
			}
			messages[f.Name][v.ValidationType] = v.ErrorMessage
		}
	}
	return &Compiled{form: form, schema: schema, printer: c.printer, messages: messages}, nil
}

// Form returns the source form.
func (c *Compiled) Form() Schema {
	return c.form
}

// Validate checks values. Field failures are returned as *InvalidError.
func (c *Compiled) Validate(values map[string]any) error {
	p := c.printer
	instance, err := normalize(values)
	if err != nil {
		return err
	}
	err = c.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schemaform: validate: %w", err)
	}
	out := make(map[string]string)
	c.collect(p, verr, out)
	if len(out) == 0 {
		out["_"] = verr.LocalizedError(p)
	}
	return &InvalidError{Validations: out}
}

func (c *Compiled) collect(p *message.Printer, verr *jsonschema.ValidationError, out map[string]string) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			c.collect(p, cause, out)
		}
		return
	}
	if required, ok := verr.ErrorKind.(*kind.Required); ok {
		for _, field := range required.Missing {
			c.put(out, field, Required, "Required")
		}
		return
	}
	field := "_"
	if len(verr.InstanceLocation) > 0 {
		field = verr.InstanceLocation[0]
	}
	switch k := verr.ErrorKind.(type) {
	case *kind.MinLength:
		if k.Want == 1 {
			c.put(out, field, Required, "Required")
			return
		}
		c.put(out, field, MinLength, verr.ErrorKind.LocalizedString(p))
	case *kind.MaxLength:
		c.put(out, field, MaxLength, verr.ErrorKind.LocalizedString(p))
	case *kind.Pattern:
		c.put(out, field, Regex, verr.ErrorKind.LocalizedString(p))
	case *kind.Format:
		if k.Want == "email" {
			c.put(out, field, IsEmail, verr.ErrorKind.LocalizedString(p))
			return
		}
		c.put(out, field, IsURL, verr.ErrorKind.LocalizedString(p))
	default:
		c.put(out, field, "", verr.ErrorKind.LocalizedString(p))
	}
}

func (c *Compiled) put(out map[string]string, field string, vt ValidationType, fallback string) {
	if _, exists := out[field]; exists {
		return
	}
	if msg := c.messages[field][vt]; msg != "" {
		out[field] = msg
		return
	}
	out[field] = fallback
}

// normalize converts values to the plain JSON shapes the validator expects.
func normalize(values map[string]any) (any, error) {
	if values == nil {
		values = map[string]any{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("schemaform: encode values: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
