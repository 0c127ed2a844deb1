// Package integrations holds the built-in action integrations.
package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hadmean/hadmean/internal/actions"
)

const maxResponseBody = 64 << 10

// Response is what a perform returns after calling a provider.
type Response struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// NewClient returns the HTTP client shared by the built-in integrations.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// All returns every built-in integration using client for outbound calls.
func All(client *http.Client) []actions.Integration {
	return []actions.Integration{
		Twilio(client, TwilioBaseURL),
		Slack(client),
		Webhook(client),
	}
}

func send(ctx context.Context, client *http.Client, method, url string, header http.Header, body string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	out := Response{Status: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	return out, nil
}

func str(config actions.Config, key string) string {
	v, _ := config[key].(string)
	return v
}
