package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/shared"
)

// AuthorizeRoute reports whether the principal's role is on the allow-list.
// An empty list admits nobody.
func AuthorizeRoute(p auth.SessionPrincipal, allowed roles.Set) bool {
	return allowed.Has(p.Role)
}

// AuthorizeUser reports whether p may address the profile of username.
func AuthorizeUser(p auth.SessionPrincipal, username string) bool {
	if p.Role.CrossUser() {
		return true
	}
	return p.Username != "" && p.Username == username
}

// ResourceAuthorizer decides record-level access from ownership.
type ResourceAuthorizer struct {
	repo   OwnerRepository
	logger *slog.Logger
}

// NewResourceAuthorizer constructs a ResourceAuthorizer.
func NewResourceAuthorizer(repo OwnerRepository, logger *slog.Logger) *ResourceAuthorizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResourceAuthorizer{repo: repo, logger: logger}
}

// AuthorizeResource reports whether p may touch row id of table. Roles that
// bypass ownership are admitted without a lookup. A missing row, a missing
// owner and a foreign owner all yield false; only storage faults return an
// error.
func (a *ResourceAuthorizer) AuthorizeResource(ctx context.Context, p auth.SessionPrincipal, table Table, id int64) (bool, error) {
	if !table.Valid() {
		return false, fmt.Errorf("rbac: %s is not an owned table", table)
	}
	if p.Role.BypassesOwnership() {
		return true, nil
	}

	ownerID, err := a.repo.FindOwner(ctx, table, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			a.logger.InfoContext(ctx, "resource not found",
				slog.String("table", table.String()), slog.Int64("id", id), slog.String("username", p.Username))
			return false, nil
		}
		return false, fmt.Errorf("%w: find owner of %s %d: %w", auth.ErrStorageUnavailable, table, id, err)
	}

	owner, err := a.repo.FindUsername(ctx, ownerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			a.logger.WarnContext(ctx, "resource owner missing",
				slog.String("table", table.String()), slog.Int64("id", id), slog.Int64("owner_id", ownerID))
			return false, nil
		}
		return false, fmt.Errorf("%w: find username %d: %w", auth.ErrStorageUnavailable, ownerID, err)
	}

	if owner != p.Username {
		a.logger.InfoContext(ctx, "resource not owned",
			slog.String("table", table.String()), slog.Int64("id", id), slog.String("username", p.Username))
		return false, nil
	}
	return true, nil
}
