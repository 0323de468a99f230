package auth

import "strings"

// UserRole is the user's marketplace role
type UserRole string

const (
	RoleInfluencer UserRole = "INFLUENCER"
	RoleAdvertiser UserRole = "ADVERTISER"
	RoleAdmin      UserRole = "ADMIN"
)

// IsValid checks if the role is one of the predefined roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleInfluencer, RoleAdvertiser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsSelfService reports whether the role can be chosen at signup.
// ADMIN is only ever granted out of band.
func (r UserRole) IsSelfService() bool {
	switch r {
	case RoleInfluencer, RoleAdvertiser:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleInfluencer,
		RoleAdvertiser,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole, accepting any casing
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// ParseRoleOrDefault returns the parsed self service role, or def
func ParseRoleOrDefault(roleStr string, def UserRole) UserRole {
	role, ok := ParseRole(roleStr)
	if !ok || !role.IsSelfService() {
		return def
	}
	return role
}
