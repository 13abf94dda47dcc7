package domain

import "time"

// UserRole controls what a user may see and do.
type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleTechnician UserRole = "technician"
	UserRoleUser       UserRole = "user"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleTechnician, UserRoleUser:
		return true
	}
	return false
}

// User is anyone who files or works tickets.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// IsTechnician reports whether the user works tickets (admins included).
func (u *User) IsTechnician() bool {
	return u != nil && (u.Role == UserRoleAdmin || u.Role == UserRoleTechnician)
}
