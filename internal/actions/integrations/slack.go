package integrations

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hadmean/hadmean/internal/actions"
	"github.com/hadmean/hadmean/internal/schemaform"
)

// Slack posts messages to an incoming webhook.
func Slack(client *http.Client) actions.Integration {
	return actions.Integration{
		Key:         "slack",
		Title:       "Slack",
		Description: "Post messages to a Slack channel through an incoming webhook",
		ConfigurationSchema: schemaform.Schema{
			{Name: "webhookUrl", Type: schemaform.TypePassword, Label: "Webhook URL", Validations: []schemaform.FieldValidation{
				{ValidationType: schemaform.Required},
				{ValidationType: schemaform.IsURL},
			}},
		},
		Performs: map[string]actions.Perform{
			"SEND_MESSAGE": {
				Label: "Send Message",
				ConfigurationSchema: schemaform.Schema{
					{Name: "text", Type: schemaform.TypeTextarea, Validations: required},
				},
				Do: func(ctx context.Context, connected, config actions.Config) (any, error) {
					payload, err := json.Marshal(map[string]string{"text": str(config, "text")})
					if err != nil {
						return nil, err
					}
					header := http.Header{}
					header.Set("Content-Type", "application/json")
					return send(ctx, client, http.MethodPost, str(connected, "webhookUrl"), header, string(payload))
				},
			},
		},
	}
}
