package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/rbac"
	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/shared"
)

// SQLiteRepository stores principals in a single SQLite file. Flags are kept
// as INTEGER 0/1.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("users: create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("users: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	repo := &SQLiteRepository{db: conn}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("users: ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, renderSchema(sqliteSchema)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("users: migrate sqlite: %w", err)
	}
	return repo, nil
}

// DB exposes the handle for fixtures and ownership tables.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// Close releases the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FindUserByName looks up a user by name.
func (r *SQLiteRepository) FindUserByName(ctx context.Context, name string) (auth.User, error) {
	var u auth.User
	var enabled int
	err := r.db.QueryRowContext(ctx, `SELECT id, name, enabled FROM users WHERE name = ?`, name).
		Scan(&u.ID, &u.Name, &enabled)
	if err != nil {
		return auth.User{}, sqlNotFound(err)
	}
	u.Enabled = enabled == 1
	return u, nil
}

// FindPrincipal looks up the credential of userID for role.
func (r *SQLiteRepository) FindPrincipal(ctx context.Context, userID int64, role roles.Role) (auth.StoredPrincipal, error) {
	p := auth.StoredPrincipal{UserID: userID, Role: role}
	var enabled int
	err := r.db.QueryRowContext(ctx,
		`SELECT password_hash, enabled FROM principals WHERE user_id = ? AND role = ?`,
		userID, string(role)).Scan(&p.PasswordHash, &enabled)
	if err != nil {
		return auth.StoredPrincipal{}, sqlNotFound(err)
	}
	p.Enabled = enabled == 1
	return p, nil
}

// FindOwner returns the owner id of a row. A row without owner counts as
// absent.
func (r *SQLiteRepository) FindOwner(ctx context.Context, table rbac.Table, id int64) (int64, error) {
	query, ok := ownerQueries[table]
	if !ok {
		return 0, fmt.Errorf("users: no owner query for %s", table)
	}
	var owner sql.NullInt64
	if err := r.db.QueryRowContext(ctx, strings.ReplaceAll(query, "$1", "?"), id).Scan(&owner); err != nil {
		return 0, sqlNotFound(err)
	}
	if !owner.Valid {
		return 0, shared.ErrNotFound
	}
	return owner.Int64, nil
}

// FindUsername resolves a user id to its name.
func (r *SQLiteRepository) FindUsername(ctx context.Context, userID int64) (string, error) {
	var name string
	if err := r.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, userID).Scan(&name); err != nil {
		return "", sqlNotFound(err)
	}
	return name, nil
}

// UpsertPrincipal creates the user when missing and sets the hash for role.
// A role outside the registry fails the CHECK constraint and returns
// roles.ErrUnknownRole.
func (r *SQLiteRepository) UpsertPrincipal(ctx context.Context, username string, role roles.Role, hash string) (Principal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Principal{}, fmt.Errorf("users: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, username); err != nil {
		return Principal{}, fmt.Errorf("users: insert user: %w", err)
	}
	p := Principal{Username: username, Role: role, PasswordHash: hash}
	var userEnabled int
	if err := tx.QueryRowContext(ctx, `SELECT id, enabled FROM users WHERE name = ?`, username).Scan(&p.UserID, &userEnabled); err != nil {
		return Principal{}, fmt.Errorf("users: select user: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO principals (user_id, role, password_hash) VALUES (?, ?, ?)
		ON CONFLICT (user_id, role) DO UPDATE SET
			password_hash = excluded.password_hash,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		p.UserID, string(role), hash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck {
			return Principal{}, fmt.Errorf("%w: %q", roles.ErrUnknownRole, string(role))
		}
		return Principal{}, fmt.Errorf("users: upsert principal: %w", err)
	}
	var enabled int
	if err := tx.QueryRowContext(ctx, `SELECT enabled FROM principals WHERE user_id = ? AND role = ?`, p.UserID, string(role)).Scan(&enabled); err != nil {
		return Principal{}, fmt.Errorf("users: select principal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Principal{}, fmt.Errorf("users: commit tx: %w", err)
	}
	p.Enabled = enabled == 1
	p.UserEnabled = userEnabled == 1
	return p, nil
}

// SetUserEnabled toggles the user-level flag.
func (r *SQLiteRepository) SetUserEnabled(ctx context.Context, username string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET enabled = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE name = ?`, boolInt(enabled), username)
	return sqlAffected(res, err)
}

// SetPrincipalEnabled toggles one role of a user.
func (r *SQLiteRepository) SetPrincipalEnabled(ctx context.Context, username string, role roles.Role, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE principals SET enabled = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE role = ? AND user_id = (SELECT id FROM users WHERE name = ?)`,
		boolInt(enabled), string(role), username)
	return sqlAffected(res, err)
}

// DeletePrincipal removes one role of a user.
func (r *SQLiteRepository) DeletePrincipal(ctx context.Context, username string, role roles.Role) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM principals WHERE role = ? AND user_id = (SELECT id FROM users WHERE name = ?)`,
		string(role), username)
	return sqlAffected(res, err)
}

// DeleteUser removes a user; principals and owned rows cascade.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, username string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE name = ?`, username)
	return sqlAffected(res, err)
}

// ListPrincipals returns every principal ordered by username then role.
func (r *SQLiteRepository) ListPrincipals(ctx context.Context) ([]Principal, error) {
	rows, err := r.db.QueryContext(ctx, `
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
		var userEnabled, enabled int
		if err := rows.Scan(&p.UserID, &p.Username, &userEnabled, &role, &p.PasswordHash, &enabled); err != nil {
			return nil, err
		}
		p.Role = roles.Role(role)
		p.UserEnabled = userEnabled == 1
		p.Enabled = enabled == 1
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func sqlAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shared.ErrNotFound
	}
	return nil
}
