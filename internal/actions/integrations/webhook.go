package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hadmean/hadmean/internal/actions"
	"github.com/hadmean/hadmean/internal/schemaform"
)

// Webhook calls an arbitrary HTTP endpoint. The activation holds the base
// URL and default headers, each perform the method, path and body.
func Webhook(client *http.Client) actions.Integration {
	return actions.Integration{
		Key:         "http",
		Title:       "HTTP",
		Description: "Send requests to any HTTP endpoint",
		ConfigurationSchema: schemaform.Schema{
			{Name: "url", Type: schemaform.TypeURL, Label: "Base URL", Validations: []schemaform.FieldValidation{
				{ValidationType: schemaform.Required},
				{ValidationType: schemaform.IsURL},
			}},
			{Name: "headers", Type: schemaform.TypeJSON, Label: "Headers"},
		},
		Performs: map[string]actions.Perform{
			"SEND_REQUEST": {
				Label: "Send Request",
				ConfigurationSchema: schemaform.Schema{
					{Name: "method", Type: schemaform.TypeText, Validations: []schemaform.FieldValidation{
						{ValidationType: schemaform.Required},
						{ValidationType: schemaform.Regex, Constraint: "^(GET|POST|PUT|PATCH|DELETE)$", ErrorMessage: "Should be one of GET, POST, PUT, PATCH, DELETE"},
					}},
					{Name: "path", Type: schemaform.TypeText},
					{Name: "body", Type: schemaform.TypeTextarea},
				},
				Do: func(ctx context.Context, connected, config actions.Config) (any, error) {
					header, err := headers(connected["headers"])
					if err != nil {
						return nil, err
					}
					endpoint := strings.TrimRight(str(connected, "url"), "/")
					if path := str(config, "path"); path != "" {
						endpoint += "/" + strings.TrimLeft(path, "/")
					}
					return send(ctx, client, str(config, "method"), endpoint, header, str(config, "body"))
				},
			},
		},
	}
}

// headers accepts either a JSON object or its string encoding.
func headers(v any) (http.Header, error) {
	out := http.Header{}
	var values map[string]any
	switch raw := v.(type) {
	case nil:
		return out, nil
	case string:
		if strings.TrimSpace(raw) == "" {
			return out, nil
		}
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("headers: %w", err)
		}
	case map[string]any:
		values = raw
	default:
		return nil, fmt.Errorf("headers: unsupported value %T", v)
	}
	for key, value := range values {
		out.Set(key, fmt.Sprint(value))
	}
	return out, nil
}
