package users

import (
	"errors"

	"github.com/sasswatch/sasswatch-api/internal/roles"
)

// User is an account that may hold principals.
type User struct {
	ID      int64
	Name    string
	Enabled bool
}

// Principal is the credential a user holds for one role.
type Principal struct {
	UserID       int64
	Username     string
	Role         roles.Role
	PasswordHash string
	Enabled      bool
	UserEnabled  bool
}

var (
	// ErrProtectedUser is returned when an operation would lock out a
	// built-in account.
	ErrProtectedUser = errors.New("users: protected user")
	// ErrInvalidUsername rejects names the credential header cannot carry.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrInvalidSecret rejects secrets the credential header cannot carry.
	ErrInvalidSecret = errors.New("users: invalid secret")
)

// protectedPrincipals are the built-in accounts and the role each needs to
// keep working.
var protectedPrincipals = map[string]roles.Role{
	"root": roles.Admin,
	"cron": roles.Cron,
}

// IsProtected reports whether username is a built-in account.
func IsProtected(username string) bool {
	_, ok := protectedPrincipals[username]
	return ok
}

func isProtectedPrincipal(username string, role roles.Role) bool {
	r, ok := protectedPrincipals[username]
	return ok && r == role
}
