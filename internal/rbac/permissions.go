package rbac

import (
	"sort"
	"strings"
)

// PermissionSet answers permission questions for one role.
type PermissionSet struct {
	all     bool
	granted map[string]struct{}
}

// NewPermissionSet builds a set from persisted permission tokens.
func NewPermissionSet(perms []string) PermissionSet {
	granted := make(map[string]struct{}, len(perms))
	for _, p := range normalizePermissions(perms) {
		granted[p] = struct{}{}
	}
	return PermissionSet{granted: granted}
}

// FullPermissionSet grants everything, scoped permissions included.
func FullPermissionSet() PermissionSet {
	return PermissionSet{all: true}
}

// Has reports whether the set allows permission. A non-empty resourceID turns
// the question into a scoped one which needs an exact grant; CAN_CONFIGURE_APP
// implies every non-scoped permission.
func (p PermissionSet) Has(permission Permission, resourceID string) bool {
	if p.all {
		return true
	}
	if resourceID != "" {
		_, ok := p.granted[Scoped(permission, resourceID)]
		return ok
	}
	if _, ok := p.granted[normalize(string(permission))]; ok {
		return true
	}
	_, ok := p.granted[string(PermConfigureApp)]
	return ok
}

// List returns the granted tokens.
func (p PermissionSet) List() []string {
	if p.all {
		out := make([]string, 0, len(AllPermissions()))
		for _, perm := range AllPermissions() {
			out = append(out, string(perm))
		}
		return out
	}
	out := make([]string, 0, len(p.granted))
	for perm := range p.granted {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

func normalize(p string) string {
	return strings.TrimSpace(strings.ToUpper(p))
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = normalize(p)
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
