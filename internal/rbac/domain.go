package rbac

import (
	"strings"
	"time"
)

// Permission is an atomic capability token.
type Permission string

// Application permissions.
const (
	PermConfigureApp       Permission = "CAN_CONFIGURE_APP"
	PermManageUsers        Permission = "CAN_MANAGE_USERS"
	PermResetPassword      Permission = "CAN_RESET_PASSWORD"
	PermManageDashboard    Permission = "CAN_MANAGE_DASHBOARD"
	PermManageIntegrations Permission = "CAN_MANAGE_INTEGRATIONS"
	PermManageAllEntities  Permission = "CAN_MANAGE_ALL_ENTITIES"

	// PermAccessEntity is only meaningful scoped to an entity slug.
	PermAccessEntity Permission = "CAN_ACCESS_ENTITY"
)

// System role identifiers.
const (
	RoleCreator = "creator"
	RoleViewer  = "viewer"
)

// AllPermissions lists every non-scoped permission.
func AllPermissions() []Permission {
	return []Permission{
		PermConfigureApp,
		PermManageUsers,
		PermResetPassword,
		PermManageDashboard,
		PermManageIntegrations,
		PermManageAllEntities,
	}
}

// Scoped returns the persisted token for permission applied to resourceID,
// e.g. CAN_ACCESS_ENTITY:ORDERS.
func Scoped(permission Permission, resourceID string) string {
	return string(permission) + ":" + strings.ToUpper(strings.TrimSpace(resourceID))
}

// CanAccessEntity is the meta permission granting access to one entity.
func CanAccessEntity(entity string) string {
	return Scoped(PermAccessEntity, entity)
}

// Known reports whether token is a catalogue permission or a scoped
// CAN_ACCESS_ENTITY grant.
func Known(token string) bool {
	token = normalize(token)
	for _, p := range AllPermissions() {
		if token == string(p) {
			return true
		}
	}
	prefix := string(PermAccessEntity) + ":"
	return strings.HasPrefix(token, prefix) && len(token) > len(prefix)
}

// IsSystemRole reports whether roleID is built in.
func IsSystemRole(roleID string) bool {
	return roleID == RoleCreator || roleID == RoleViewer
}

// Role is a custom permission grouping.
type Role struct {
	ID          string    `json:"id"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
