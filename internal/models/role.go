package models

import "fmt"

// Role is the closed set of actor roles.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleCustomer Role = "customer"
)

func (r Role) IsValid() bool {
	return r == RoleOwner || r == RoleCustomer
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw value into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role: %q", raw)
	}
	return role, nil
}
