package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt work factor used for all stored credentials.
// Fixed so verification cost stays constant under load.
const HashCost = 12

// Role represents a user role as a closed enumeration.
type Role string

const (
	RoleAdmin Role = "admin" // Can manage users and all fleet data
	RoleUser  Role = "user"  // Regular user, limited to their own records
)

// ParseRole converts a raw string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether the role is a member of the closed enumeration.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// In reports whether the role is a member of the permitted set.
func (r Role) In(permitted ...Role) bool {
	for _, p := range permitted {
		if r == p {
			return true
		}
	}
	return false
}

type User struct {
	ID           string    `json:"id,omitempty" db:"id"`                 // Unique identifier for the user
	Email        string    `json:"email,omitempty" db:"email"`           // User's email address
	Name         string    `json:"name,omitempty" db:"name"`             // Display name
	Role         Role      `json:"role,omitempty" db:"role"`             // Role within the fleet application
	PasswordHash string    `json:"-" db:"password_hash"`                 // Hashed version of the user's password - never serialize
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"` // Date and time when the user was created
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	return string(bytes), err
}

// CheckPasswordHash returns a boolean only. A mismatch is never an error:
// callers must not be able to tell "wrong password" from "no such user".
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Sanitized returns a copy safe for API responses. The hash is already
// excluded from JSON, this additionally guards against accidental reuse.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}
