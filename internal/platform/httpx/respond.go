package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the JSON body returned for every failed request.
type Envelope struct {
	Message     string            `json:"message"`
	StatusCode  int               `json:"statusCode"`
	Name        string            `json:"name,omitempty"`
	Validations map[string]string `json:"validations,omitempty"`
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Timestamp   string            `json:"timestamp"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// NewEnvelope maps err onto the error envelope. Errors outside the taxonomy
// become a generic 500 without name or validations.
func NewEnvelope(r *http.Request, err error, now time.Time) Envelope {
	env := Envelope{
		Path:      r.URL.RequestURI(),
		Method:    r.Method,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	if e, ok := AsError(err); ok {
		env.Message = e.Message
		env.StatusCode = e.Status
		env.Name = e.Name
		if len(e.Validations) > 0 {
			env.Validations = e.Validations
		}
		return env
	}
	env.Message = MessageInternal
	env.StatusCode = http.StatusInternalServerError
	return env
}

// RespondError writes the error envelope for err.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	env := NewEnvelope(r, err, time.Now())
	JSON(w, env.StatusCode, env)
}

// DecodeJSON decodes JSON request body into the target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
