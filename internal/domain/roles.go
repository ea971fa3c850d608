// Package domain defines shared domain constants and types.
package domain

const (
	// RoleAdmin marks members allowed to reset the weekly standings when an
	// admin list is configured.
	RoleAdmin = "admin"
	// RoleMember represents a regular team member.
	RoleMember = "member"
)

// IsAdmin reports whether the role carries admin privileges.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}
