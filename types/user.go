package types

import "time"

// Role values understood by the platform.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// FullName is the user's display name.
	FullName string `json:"full_name" db:"full_name" validate:"required"`

	// Email is the user's email address. It is unique across accounts and
	// stored lower-cased.
	Email string `json:"email" db:"email" validate:"required,email"`

	// Role indicates the user's authorization level within the system
	// (e.g., "admin", "user").
	Role string `json:"role" db:"role" validate:"required,oneof=user admin"`

	// PasswordHash stores the bcrypt representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserSummary is the public projection of a user returned by auth endpoints.
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Summary projects the user to the fields safe to hand back on login.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// Creator is the minimal projection of a session's owner shown in public
// listings.
type Creator struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
