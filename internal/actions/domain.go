// Package actions hosts the action integration registry and the persisted
// activations and instances that use it.
package actions

import (
	"context"
	"time"

	"github.com/hadmean/hadmean/internal/schemaform"
)

// Config is a configuration object as submitted by the dashboard.
type Config map[string]any

// ConnectFunc turns an activation configuration into the connected
// configuration handed to every perform.
type ConnectFunc func(ctx context.Context, config Config) (Config, error)

// DoFunc runs a perform.
type DoFunc func(ctx context.Context, connected Config, config Config) (any, error)

// Perform is one named action of an integration.
type Perform struct {
	Label               string
	ConfigurationSchema schemaform.Schema
	Do                  DoFunc
}

// Integration describes a third party connector. A nil Connect echoes the
// configuration.
type Integration struct {
	Key                 string
	Title               string
	Description         string
	ConfigurationSchema schemaform.Schema
	Connect             ConnectFunc
	Performs            map[string]Perform
}

// FormAction is the entity form event an instance is attached to.
type FormAction string

// Form actions.
const (
	FormActionCreate FormAction = "create"
	FormActionUpdate FormAction = "update"
	FormActionDelete FormAction = "delete"
)

// Valid reports whether a is a known form action.
func (a FormAction) Valid() bool {
	switch a {
	case FormActionCreate, FormActionUpdate, FormActionDelete:
		return true
	}
	return false
}

// Activation is an integration connected with stored credentials.
type Activation struct {
	ID             string
	IntegrationKey string
	Sealed         string
	CreatedAt      time.Time
}

// ActivationView is an activation without its secrets.
type ActivationView struct {
	ID             string    `json:"activationId"`
	IntegrationKey string    `json:"integrationKey"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Instance binds a perform to an entity form action.
type Instance struct {
	ID                string     `json:"instanceId"`
	IntegrationKey    string     `json:"integrationKey"`
	Entity            string     `json:"entity"`
	FormAction        FormAction `json:"formAction"`
	ImplementationKey string     `json:"implementationKey"`
	Configuration     Config     `json:"configuration"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// InstanceFilter narrows ListInstances. Empty fields match everything.
type InstanceFilter struct {
	Entity         string
	IntegrationKey string
}

// RunPayload is the queued request to run an instance.
type RunPayload struct {
	InstanceID string         `json:"instanceId"`
	Data       map[string]any `json:"data"`
}
