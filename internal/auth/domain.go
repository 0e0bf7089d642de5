package auth

import "github.com/sasswatch/sasswatch-api/internal/roles"

// Credentials is the candidate identity decoded from an Authorization header.
// Role is kept raw so the registry check happens as its own step.
type Credentials struct {
	Username string `validate:"required,max=64"`
	Role     string `validate:"required,max=16"`
	Secret   string `validate:"required"`
}

// User is the identity record read during authentication.
type User struct {
	ID      int64
	Name    string
	Enabled bool
}

// StoredPrincipal is the role-scoped credential of a user.
type StoredPrincipal struct {
	UserID       int64
	Role         roles.Role
	PasswordHash string
	Enabled      bool
}

// SessionPrincipal is the authenticated identity attached to one request.
// It is passed by value and never persisted.
type SessionPrincipal struct {
	ID       int64
	Username string
	Role     roles.Role
	secret   string
}

// NewSessionPrincipal builds a SessionPrincipal. Outside of Service it is
// meant for tests and for collaborators that authenticate out of band.
func NewSessionPrincipal(id int64, username string, role roles.Role, secret string) SessionPrincipal {
	return SessionPrincipal{ID: id, Username: username, Role: role, secret: secret}
}

// Secret returns the secret exactly as presented with the request.
func (p SessionPrincipal) Secret() string {
	return p.secret
}
