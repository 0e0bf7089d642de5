package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/users"
)

func newService(t *testing.T) (*users.Service, *users.SQLiteRepository, *auth.Hasher) {
	t.Helper()
	repo := openSQLite(t)
	hasher, err := auth.NewHasher(bcrypt.MinCost, 1)
	require.NoError(t, err)
	return users.NewService(repo, hasher, nil), repo, hasher
}

func TestPutPrincipalAuthenticates(t *testing.T) {
	svc, repo, hasher := newService(t)
	ctx := context.Background()

	_, err := svc.PutPrincipal(ctx, "alice", "edit", "hunter2")
	require.NoError(t, err)

	authn := auth.NewService(repo, hasher, nil)
	p, err := authn.Authenticate(ctx, auth.EncodeCredentials("alice", "edit", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, roles.Edit, p.Role)

	_, err = authn.Authenticate(ctx, auth.EncodeCredentials("alice", "edit", "wrong"))
	require.ErrorIs(t, err, auth.ErrBadSecret)

	_, err = authn.Authenticate(ctx, auth.EncodeCredentials("alice", "root", "hunter2"))
	require.ErrorIs(t, err, auth.ErrUnknownPrincipal)
}

func TestDisabledUserCannotAuthenticate(t *testing.T) {
	svc, repo, hasher := newService(t)
	ctx := context.Background()

	_, err := svc.PutPrincipal(ctx, "carol", "view", "pw")
	require.NoError(t, err)
	require.NoError(t, svc.SetUserEnabled(ctx, "carol", false))

	_, err = auth.NewService(repo, hasher, nil).Authenticate(ctx, auth.EncodeCredentials("carol", "view", "pw"))
	require.ErrorIs(t, err, auth.ErrDisabledPrincipal)
}

func TestPutPrincipalValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PutPrincipal(ctx, "alice", "superuser", "pw")
	require.ErrorIs(t, err, roles.ErrUnknownRole)

	_, err = svc.PutPrincipal(ctx, "al:ice", "edit", "pw")
	require.ErrorIs(t, err, users.ErrInvalidUsername)

	_, err = svc.PutPrincipal(ctx, "al ice", "edit", "pw")
	require.ErrorIs(t, err, users.ErrInvalidUsername)

	_, err = svc.PutPrincipal(ctx, "alice", "edit", "")
	require.Error(t, err)

	_, err = svc.PutPrincipal(ctx, "alice", "edit", "pa:ss")
	require.ErrorIs(t, err, users.ErrInvalidSecret)
}

func TestProtectedUsers(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PutPrincipal(ctx, "root", "root", "pw")
	require.NoError(t, err)
	_, err = svc.PutPrincipal(ctx, "root", "view", "pw")
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetUserEnabled(ctx, "root", false), users.ErrProtectedUser)
	require.ErrorIs(t, svc.DeleteUser(ctx, "cron"), users.ErrProtectedUser)
	require.ErrorIs(t, svc.DeletePrincipal(ctx, "root", roles.Admin), users.ErrProtectedUser)
	require.ErrorIs(t, svc.SetPrincipalEnabled(ctx, "root", roles.Admin, false), users.ErrProtectedUser)

	require.NoError(t, svc.SetPrincipalEnabled(ctx, "root", roles.View, false))
	require.NoError(t, svc.DeletePrincipal(ctx, "root", roles.View))
	require.NoError(t, svc.SetUserEnabled(ctx, "root", true))
}

func TestListPrincipals(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	for _, role := range []string{"view", "edit"} {
		_, err := svc.PutPrincipal(ctx, "dave", role, "pw")
		require.NoError(t, err)
	}
	list, err := svc.ListPrincipals(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		assert.NotEqual(t, "pw", p.PasswordHash)
	}
}
