// Package rbac gates routes by actor role. Roles are flat capabilities,
// not a hierarchy: a route names the roles it accepts and the predicate
// answers membership.
package rbac

import "strings"

// Known roles.
const (
	RoleAdmin     = "admin"
	RoleSales     = "sales"
	RoleWarehouse = "warehouse"
)

// Allowed reports whether role is one of the required roles. An empty
// requirement list admits every authenticated actor.
func Allowed(role string, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	role = strings.TrimSpace(strings.ToLower(role))
	for _, r := range required {
		if role == strings.TrimSpace(strings.ToLower(r)) {
			return true
		}
	}
	return false
}
