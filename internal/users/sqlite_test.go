package users_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasswatch/sasswatch-api/internal/rbac"
	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/shared"
	"github.com/sasswatch/sasswatch-api/internal/users"
	_ "github.com/sasswatch/sasswatch-api/testing"
)

func openSQLite(t *testing.T) *users.SQLiteRepository {
	t.Helper()
	repo, err := users.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sasswatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteUpsertAndFind(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	p, err := repo.UpsertPrincipal(ctx, "alice", roles.Edit, "hash-1")
	require.NoError(t, err)
	assert.True(t, p.Enabled)
	assert.True(t, p.UserEnabled)

	again, err := repo.UpsertPrincipal(ctx, "alice", roles.Edit, "hash-2")
	require.NoError(t, err)
	assert.Equal(t, p.UserID, again.UserID)

	u, err := repo.FindUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p.UserID, u.ID)
	assert.True(t, u.Enabled)

	sp, err := repo.FindPrincipal(ctx, u.ID, roles.Edit)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", sp.PasswordHash)
	assert.True(t, sp.Enabled)

	_, err = repo.FindPrincipal(ctx, u.ID, roles.Admin)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindUserByName(ctx, "nobody")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSQLiteEnabledFlags(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	p, err := repo.UpsertPrincipal(ctx, "carol", roles.View, "hash")
	require.NoError(t, err)

	require.NoError(t, repo.SetUserEnabled(ctx, "carol", false))
	u, err := repo.FindUserByName(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, u.Enabled)

	require.NoError(t, repo.SetPrincipalEnabled(ctx, "carol", roles.View, false))
	sp, err := repo.FindPrincipal(ctx, p.UserID, roles.View)
	require.NoError(t, err)
	assert.False(t, sp.Enabled)

	require.ErrorIs(t, repo.SetUserEnabled(ctx, "ghost", true), shared.ErrNotFound)
	require.ErrorIs(t, repo.SetPrincipalEnabled(ctx, "carol", roles.Admin, true), shared.ErrNotFound)
}

func TestSQLiteOwnership(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	bob, err := repo.UpsertPrincipal(ctx, "bob", roles.Edit, "hash")
	require.NoError(t, err)

	db := repo.DB()
	_, err = db.ExecContext(ctx, `INSERT INTO calendar (id, owner_id) VALUES (42, ?)`, bob.UserID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO event (id, calendar_id) VALUES (900, 42)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO message (id, owner_id) VALUES (5, NULL)`)
	require.NoError(t, err)

	owner, err := repo.FindOwner(ctx, rbac.Calendar, 42)
	require.NoError(t, err)
	assert.Equal(t, bob.UserID, owner)

	owner, err = repo.FindOwner(ctx, rbac.Event, 900)
	require.NoError(t, err)
	assert.Equal(t, bob.UserID, owner)

	_, err = repo.FindOwner(ctx, rbac.Message, 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindOwner(ctx, rbac.Agenda, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	name, err := repo.FindUsername(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	require.NoError(t, repo.DeleteUser(ctx, "bob"))
	_, err = repo.FindOwner(ctx, rbac.Event, 900)
	require.ErrorIs(t, err, shared.ErrNotFound, "delete cascades to owned rows")
}

func TestSQLiteListAndDelete(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	_, err := repo.UpsertPrincipal(ctx, "bob", roles.View, "h")
	require.NoError(t, err)
	_, err = repo.UpsertPrincipal(ctx, "alice", roles.Admin, "h")
	require.NoError(t, err)
	_, err = repo.UpsertPrincipal(ctx, "alice", roles.Edit, "h")
	require.NoError(t, err)

	list, err := repo.ListPrincipals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, roles.Edit, list[0].Role)
	assert.Equal(t, "bob", list[2].Username)

	require.NoError(t, repo.DeletePrincipal(ctx, "alice", roles.Edit))
	require.ErrorIs(t, repo.DeletePrincipal(ctx, "alice", roles.Edit), shared.ErrNotFound)
}

func TestSQLiteAcceptsEveryRegisteredRole(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()
	for _, info := range roles.All() {
		p, err := repo.UpsertPrincipal(ctx, "alice", info.Role, "h")
		require.NoError(t, err, info.Role)
		assert.Equal(t, info.Role, p.Role)
	}
	list, err := repo.ListPrincipals(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(roles.All()))
}

func TestSQLiteRejectsUnknownRole(t *testing.T) {
	repo := openSQLite(t)
	_, err := repo.UpsertPrincipal(context.Background(), "alice", roles.Role("god"), "h")
	require.ErrorIs(t, err, roles.ErrUnknownRole)
}
