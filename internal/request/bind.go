package request

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/hadmean/hadmean/internal/platform/httpx"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Bind decodes the validated body into dst, a pointer to a struct using json
// tags, then runs its validate tags. Failures are BadRequest errors with one
// entry per offending field.
func Bind(validated *Validated, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           dst,
		WeaklyTypedInput: false,
		ErrorUnused:      false,
	})
	if err != nil {
		return fmt.Errorf("request: bind: %w", err)
	}
	if err := decoder.Decode(validated.Body()); err != nil {
		return httpx.BadRequest("", decodeValidations(err))
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return httpx.BadRequest("", fieldValidations(fieldErrs))
		}
		return fmt.Errorf("request: bind: %w", err)
	}
	return nil
}

func fieldValidations(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = describeTag(fe)
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "min":
		return "Should be at least " + fe.Param()
	case "max":
		return "Should be at most " + fe.Param()
	case "oneof":
		return "Should be one of " + fe.Param()
	default:
		return "Invalid " + fe.Tag()
	}
}

func decodeValidations(err error) map[string]string {
	var merr *mapstructure.Error
	if !errors.As(err, &merr) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(merr.Errors))
	for _, msg := range merr.Errors {
		field := "body"
		// mapstructure reports "'field' expected type ..."
		if start := strings.Index(msg, "'"); start >= 0 {
			if end := strings.Index(msg[start+1:], "'"); end > 0 {
				field = msg[start+1 : start+1+end]
			}
		}
		out[field] = "Invalid type"
	}
	return out
}
