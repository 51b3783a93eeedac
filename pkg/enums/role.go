package enums

import "fmt"

// Role represents an organizational permissions role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleHR         Role = "hr"
	RoleManager    Role = "manager"
	RoleFinance    Role = "finance"
	RoleInstructor Role = "instructor"
	RoleEmployee   Role = "employee"
)

var validRoles = []Role{
	RoleAdmin,
	RoleHR,
	RoleManager,
	RoleFinance,
	RoleInstructor,
	RoleEmployee,
}

// DefaultRole is the least-privileged role assigned when sign-up omits one.
const DefaultRole = RoleEmployee

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
