package auth

import (
	"errors"
	"fmt"
)

// Role is one of the three fixed roles in the system.
type Role string

const (
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
	RoleSuperadmin Role = "superadmin"
)

// Supervises reports whether the role carries supervisor authority.
func (r Role) Supervises() bool { return r == RoleSupervisor || r == RoleSuperadmin }

// User is one roster account. Credential is the badge code scanned at the
// line terminal; PasswordHash (bcrypt) guards the HTTP API login.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Credential   string `json:"credential"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	Active       bool   `json:"active"`
}

// Identity is the result of resolving a credential.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Active   bool   `json:"active"`
}

// Session is the authenticated caller, passed explicitly through every call
// boundary that mutates state. There is no ambient session store.
type Session struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Actor is the session's short form used in journal events.
func (s Session) Actor() string {
	if s.Username != "" {
		return s.Username
	}
	return s.UserID
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DenyReason classifies an authorization rejection.
type DenyReason string

const (
	DenyCredentialNotFound DenyReason = "credential_not_found"
	DenyInactive           DenyReason = "inactive"
	DenyNotAuthorized      DenyReason = "not_authorized"
)

// AuthzError is a typed authorization rejection; safe to retry with a
// different credential.
type AuthzError struct {
	Reason DenyReason
}

func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}
