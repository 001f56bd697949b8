package domain

import "time"

// Role identifies what a caller is allowed to do. It is captured on each
// comment at write time and never re-derived afterwards.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSupport  Role = "support"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleSupport, RoleAdmin:
		return true
	}
	return false
}

// User is the domain model for anyone who can log in: customers filing
// tickets, support agents working them, and admins.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
