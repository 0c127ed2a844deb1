package credentials

import (
	"errors"
	"regexp"
)

// RedactedValue replaces secret values in listings.
const RedactedValue = "***********"

// Groups partition stored secrets.
const (
	GroupCredentials = "credentials"
	GroupStorage     = "storage"
)

var (
	// ErrNotFound indicates the credential does not exist.
	ErrNotFound = errors.New("credentials: not found")
	// ErrInvalidKey indicates a key outside [A-Za-z0-9_.-].
	ErrInvalidKey = errors.New("credentials: invalid key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,128}$`)

// Credential is a named secret.
type Credential struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is the persisted form of a credential.
type Record struct {
	Group  string
	Key    string
	Sealed string
}
