package schemaform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var twilioForm = Schema{
	{Name: "authToken", Type: TypePassword, Validations: []FieldValidation{{ValidationType: Required}}},
	{Name: "accountSid", Type: TypeText, Label: "Account SID", Validations: []FieldValidation{{ValidationType: Required}}},
}

func TestCompileAndValidate(t *testing.T) {
	compiled, err := NewCompiler(language.English).Compile("twilio", twilioForm)
	require.NoError(t, err)

	assert.NoError(t, compiled.Validate(map[string]any{"authToken": "t", "accountSid": "AC1"}))

	err = compiled.Validate(map[string]any{"accountSid": ""})
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, map[string]string{"authToken": "Required", "accountSid": "Required"}, invalid.Validations)
}

func TestConstraintsAndCustomMessages(t *testing.T) {
	form := Schema{
		{Name: "webhook", Type: TypeURL, Validations: []FieldValidation{{ValidationType: Required}}},
		{Name: "code", Type: TypeText, Validations: []FieldValidation{
			{ValidationType: Regex, Constraint: "^[A-Z]+$", ErrorMessage: "Upper case letters only"},
			{ValidationType: MaxLength, Constraint: 4},
		}},
		{Name: "retries", Type: TypeNumber, Validations: []FieldValidation{{ValidationType: Max, Constraint: 5}}},
	}
	compiled, err := NewCompiler(language.English).Compile("constraints", form)
	require.NoError(t, err)

	assert.NoError(t, compiled.Validate(map[string]any{"webhook": "https://hooks.example.com/x", "code": "AB", "retries": 2}))

	err = compiled.Validate(map[string]any{"webhook": "https://hooks.example.com/x", "code": "ab", "retries": 9})
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Upper case letters only", invalid.Validations["code"])
	assert.Contains(t, invalid.Validations, "retries")
	assert.NotContains(t, invalid.Validations, "webhook")
}

func TestCompileRejectsBadForms(t *testing.T) {
	c := NewCompiler(language.English)
	_, err := c.Compile("bad-type", Schema{{Name: "x", Type: "colour"}})
	assert.Error(t, err)
	_, err = c.Compile("bad-validation", Schema{{Name: "x", Type: TypeText, Validations: []FieldValidation{{ValidationType: "unique"}}}})
	assert.Error(t, err)
	_, err = c.Compile("duplicate", Schema{{Name: "x"}, {Name: "x"}})
	assert.Error(t, err)
	_, err = c.Compile("regex", Schema{{Name: "x", Validations: []FieldValidation{{ValidationType: Regex, Constraint: "("}}}})
	assert.Error(t, err)
}

func TestSchemaMarshalKeepsOrder(t *testing.T) {
	raw, err := json.Marshal(twilioForm)
	require.NoError(t, err)
	assert.Equal(t, `{"authToken":{"type":"password","validations":[{"validationType":"required"}]},"accountSid":{"type":"text","label":"Account SID","validations":[{"validationType":"required"}]}}`, string(raw))
	assert.Equal(t, []string{"authToken"}, twilioForm.Secrets())
}
