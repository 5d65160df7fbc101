package domain

import "strings"

// Role is the closed set of caller roles issued by the identity provider.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// ParseRole normalizes a role name. Unknown names yield false.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	}
	return "", false
}

// Caller is the authenticated identity behind a request. It is threaded
// explicitly through every engine operation.
type Caller struct {
	UserID string
	Role   Role
}

// IsAdmin reports admin capability. Super admins are admins.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin || c.Role == RoleSuperAdmin
}

// IsSuperAdmin reports super-admin capability.
func (c Caller) IsSuperAdmin() bool {
	return c.Role == RoleSuperAdmin
}

// CanManage reports whether the caller may mutate a quiz created by ownerID.
func (c Caller) CanManage(ownerID string) bool {
	if c.IsSuperAdmin() {
		return true
	}
	return c.IsAdmin() && c.UserID == ownerID
}
