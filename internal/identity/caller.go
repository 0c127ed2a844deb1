// Package identity resolves who is calling for each request.
package identity

import "github.com/hadmean/hadmean/internal/rbac"

// Caller is the resolved actor of a request. The zero value is anonymous.
type Caller struct {
	Username    string
	Name        string
	RoleID      string
	Permissions rbac.PermissionSet
}

// Anonymous returns the caller used when no valid credentials are present.
func Anonymous() Caller {
	return Caller{}
}

// IsAnonymous reports whether the caller carries no authenticated user.
func (c Caller) IsAnonymous() bool {
	return c.Username == ""
}

// Can reports whether the caller holds permission, optionally scoped to
// resourceID. Anonymous callers hold nothing.
func (c Caller) Can(permission rbac.Permission, resourceID string) bool {
	if c.IsAnonymous() {
		return false
	}
	return c.Permissions.Has(permission, resourceID)
}

// Profile is the public view of an authenticated caller.
type Profile struct {
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Profile returns the account view sent to the dashboard.
func (c Caller) Profile() Profile {
	return Profile{
		Username:    c.Username,
		Name:        c.Name,
		Role:        c.RoleID,
		Permissions: c.Permissions.List(),
	}
}
