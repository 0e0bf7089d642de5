package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/platform/db"
	"github.com/sasswatch/sasswatch-api/internal/rbac"
	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/shared"
)

// RepositoryPort is the principal store behind both the request path and
// the administration service.
type RepositoryPort interface {
	auth.Repository
	rbac.OwnerRepository

	UpsertPrincipal(ctx context.Context, username string, role roles.Role, hash string) (Principal, error)
	SetUserEnabled(ctx context.Context, username string, enabled bool) error
	SetPrincipalEnabled(ctx context.Context, username string, role roles.Role, enabled bool) error
	DeletePrincipal(ctx context.Context, username string, role roles.Role) error
	DeleteUser(ctx context.Context, username string) error
	ListPrincipals(ctx context.Context) ([]Principal, error)
	Ping(ctx context.Context) error
}

const checkViolation = "23514"

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool  *pgxpool.Pool
	group singleflight.Group
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Migrate creates missing tables.
func (r *PGRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, renderSchema(postgresSchema)); err != nil {
		return fmt.Errorf("users: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *PGRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// FindUserByName looks up a user. Concurrent lookups of the same name share
// one round trip that no single caller can cancel for the others.
func (r *PGRepository) FindUserByName(ctx context.Context, name string) (auth.User, error) {
	u, err := coalesce(ctx, &r.group, "user:"+name, func(ctx context.Context) (auth.User, error) {
		var u auth.User
		err := r.pool.QueryRow(ctx, `SELECT id, name, enabled FROM users WHERE name = $1`, name).
			Scan(&u.ID, &u.Name, &u.Enabled)
		return u, err
	})
	if err != nil {
		return auth.User{}, notFound(err)
	}
	return u, nil
}

// FindPrincipal looks up the credential of userID for role.
func (r *PGRepository) FindPrincipal(ctx context.Context, userID int64, role roles.Role) (auth.StoredPrincipal, error) {
	p := auth.StoredPrincipal{UserID: userID, Role: role}
	err := r.pool.QueryRow(ctx,
		`SELECT password_hash, enabled FROM principals WHERE user_id = $1 AND role = $2`,
		userID, string(role)).Scan(&p.PasswordHash, &p.Enabled)
	if err != nil {
		return auth.StoredPrincipal{}, notFound(err)
	}
	return p, nil
}

// FindOwner returns the owner id of a row. A row without owner counts as
// absent.
func (r *PGRepository) FindOwner(ctx context.Context, table rbac.Table, id int64) (int64, error) {
	query, ok := ownerQueries[table]
	if !ok {
		return 0, fmt.Errorf("users: no owner query for %s", table)
	}
	owner, err := coalesce(ctx, &r.group, "owner:"+table.String()+":"+strconv.FormatInt(id, 10), func(ctx context.Context) (int64, error) {
		var owner *int64
		if err := r.pool.QueryRow(ctx, query, id).Scan(&owner); err != nil {
			return 0, err
		}
		if owner == nil {
			return 0, pgx.ErrNoRows
		}
		return *owner, nil
	})
	if err != nil {
		return 0, notFound(err)
	}
	return owner, nil
}

// FindUsername resolves a user id to its name.
func (r *PGRepository) FindUsername(ctx context.Context, userID int64) (string, error) {
	var name string
	if err := r.pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name); err != nil {
		return "", notFound(err)
	}
	return name, nil
}

// UpsertPrincipal creates the user when missing and sets the hash for role.
func (r *PGRepository) UpsertPrincipal(ctx context.Context, username string, role roles.Role, hash string) (Principal, error) {
	p := Principal{Username: username, Role: role, PasswordHash: hash}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
			RETURNING id, enabled`, username).Scan(&p.UserID, &p.UserEnabled); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO principals (user_id, role, password_hash) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, role) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = NOW()
			RETURNING enabled`, p.UserID, string(role), hash).Scan(&p.Enabled)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
			return Principal{}, fmt.Errorf("%w: %q", roles.ErrUnknownRole, string(role))
		}
		return Principal{}, fmt.Errorf("users: upsert principal: %w", err)
	}
	return p, nil
}

// SetUserEnabled toggles the user-level flag.
func (r *PGRepository) SetUserEnabled(ctx context.Context, username string, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET enabled = $2, updated_at = NOW() WHERE name = $1`, username, enabled)
	return affected(tag.RowsAffected(), err)
}

// SetPrincipalEnabled toggles one role of a user.
func (r *PGRepository) SetPrincipalEnabled(ctx context.Context, username string, role roles.Role, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals p SET enabled = $3, updated_at = NOW()
		FROM users u WHERE u.id = p.user_id AND u.name = $1 AND p.role = $2`,
		username, string(role), enabled)
	return affected(tag.RowsAffected(), err)
}

// DeletePrincipal removes one role of a user.
func (r *PGRepository) DeletePrincipal(ctx context.Context, username string, role roles.Role) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM principals p USING users u
		WHERE u.id = p.user_id AND u.name = $1 AND p.role = $2`,
		username, string(role))
	return affected(tag.RowsAffected(), err)
}

// DeleteUser removes a user; principals and owned rows cascade.
func (r *PGRepository) DeleteUser(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE name = $1`, username)
	return affected(tag.RowsAffected(), err)
}

// ListPrincipals returns every principal ordered by username then role.
func (r *PGRepository) ListPrincipals(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.enabled, p.role, p.password_hash, p.enabled
		FROM principals p JOIN users u ON u.id = p.user_id
		ORDER BY u.name, p.role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Principal
	for rows.Next() {
		var p Principal
		var role string
		if err := rows.Scan(&p.UserID, &p.Username, &p.UserEnabled, &role, &p.PasswordHash, &p.Enabled); err != nil {
			return nil, err
		}
		p.Role = roles.Role(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Pool exposes the pool for fixtures and the audit logger.
func (r *PGRepository) Pool() *pgxpool.Pool {
	return r.pool
}
