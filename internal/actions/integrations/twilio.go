package integrations

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/hadmean/hadmean/internal/actions"
	"github.com/hadmean/hadmean/internal/schemaform"
)

// TwilioBaseURL is the public Twilio REST endpoint.
const TwilioBaseURL = "https://api.twilio.com"

var required = []schemaform.FieldValidation{{ValidationType: schemaform.Required}}

// Twilio sends SMS through the Twilio messages API.
func Twilio(client *http.Client, baseURL string) actions.Integration {
	return actions.Integration{
		Key:         "twilio",
		Title:       "Twilio",
		Description: "Send SMS through Twilio",
		ConfigurationSchema: schemaform.Schema{
			{Name: "authToken", Type: schemaform.TypePassword, Validations: required},
			{Name: "accountSid", Type: schemaform.TypeText, Label: "Account SID", Validations: required},
		},
		Performs: map[string]actions.Perform{
			"SEND_MESSAGE": {
				Label: "Send Message",
				ConfigurationSchema: schemaform.Schema{
					{Name: "from", Type: schemaform.TypeText, Validations: required},
					{Name: "to", Type: schemaform.TypeText, Validations: required},
					{Name: "body", Type: schemaform.TypeTextarea, Validations: required},
				},
				Do: func(ctx context.Context, connected, config actions.Config) (any, error) {
					sid := str(connected, "accountSid")
					form := url.Values{}
					form.Set("Body", str(config, "body"))
					form.Set("From", str(config, "from"))
					form.Set("To", str(config, "to"))

					header := http.Header{}
					header.Set("Content-Type", "application/x-www-form-urlencoded")
					header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(sid+":"+str(connected, "authToken"))))

					endpoint := baseURL + "/2010-04-01/Accounts/" + url.PathEscape(sid) + "/Messages.json"
					return send(ctx, client, http.MethodPost, endpoint, header, form.Encode())
				},
			},
		},
	}
}
