package auth

import (
	"context"

	"github.com/sasswatch/sasswatch-api/internal/roles"
)

// Repository is the read side of the principal store used during
// authentication. Both methods return shared.ErrNotFound when the record is
// absent; any other error is a storage fault.
type Repository interface {
	FindUserByName(ctx context.Context, name string) (User, error)
	FindPrincipal(ctx context.Context, userID int64, role roles.Role) (StoredPrincipal, error)
}
