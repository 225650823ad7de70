package models

import (
	"strings"
	"time"

	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
)

// User is a registered account. Email is the login identity and the token
// subject.
type User struct {
	ID           id.UserID
	Email        string
	PasswordHash string
	Role         id.Role
	CreatedAt    time.Time
}

// NewUser builds a user, enforcing the record invariants.
func NewUser(userID id.UserID, email, passwordHash string, role id.Role, createdAt time.Time) (*User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if strings.TrimSpace(email) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email is required")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	if createdAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "created_at is required")
	}
	return &User{
		ID:           userID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    createdAt,
	}, nil
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u.Role == id.RoleAdmin
}

// TokenPair is what login and refresh return.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
