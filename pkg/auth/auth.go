// Package auth is the capability check for administrative vault actions.
package auth

import "errors"

type Role string

const (
	// RoleAdmin gates asset registry mutation and emergency withdrawal
	RoleAdmin Role = "admin"
	// RoleOperator is granted at construction, reserved for operational actions
	RoleOperator Role = "operator"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authorizer answers whether a caller holds a role. The role storage
// mechanism is the collaborator's concern, not the vault's.
type Authorizer interface {
	HasRole(caller string, role Role) bool
}

// StaticRoles is a map-backed Authorizer.
type StaticRoles map[string][]Role

func (s StaticRoles) HasRole(caller string, role Role) bool {
	for _, r := range s[caller] {
		if r == role {
			return true
		}
	}
	return false
}

// Grant adds a role to a caller, duplicates are ignored.
func (s StaticRoles) Grant(caller string, role Role) {
	if s.HasRole(caller, role) {
		return
	}
	s[caller] = append(s[caller], role)
}
