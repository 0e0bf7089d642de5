package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/shared"
	_ "github.com/sasswatch/sasswatch-api/testing"
)

type principalKey struct {
	userID int64
	role   roles.Role
}

type stubRepo struct {
	mu         sync.Mutex
	users      map[string]auth.User
	principals map[principalKey]auth.StoredPrincipal
	err        error
	calls      int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:      map[string]auth.User{},
		principals: map[principalKey]auth.StoredPrincipal{},
	}
}

func (s *stubRepo) FindUserByName(ctx context.Context, name string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return auth.User{}, s.err
	}
	u, ok := s.users[name]
	if !ok {
		return auth.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindPrincipal(ctx context.Context, userID int64, role roles.Role) (auth.StoredPrincipal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p, ok := s.principals[principalKey{userID, role}]
	if !ok {
		return auth.StoredPrincipal{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) addUser(id int64, name string, enabled bool) {
	s.users[name] = auth.User{ID: id, Name: name, Enabled: enabled}
}

func (s *stubRepo) addPrincipal(t *testing.T, userID int64, role roles.Role, secret string, enabled bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	s.principals[principalKey{userID, role}] = auth.StoredPrincipal{
		UserID:       userID,
		Role:         role,
		PasswordHash: string(hash),
		Enabled:      enabled,
	}
}

func newHasher(t *testing.T) *auth.Hasher {
	t.Helper()
	h, err := auth.NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)
	return h
}

// aliceRepo holds alice with an enabled edit role and a disabled view role.
func aliceRepo(t *testing.T) *stubRepo {
	repo := newStubRepo()
	repo.addUser(7, "alice", true)
	repo.addPrincipal(t, 7, roles.Edit, "s3cret", true)
	repo.addPrincipal(t, 7, roles.View, "v1ew", false)
	repo.addUser(8, "mallory", false)
	repo.addPrincipal(t, 8, roles.Edit, "pw", true)
	return repo
}

func TestAuthenticateSuccess(t *testing.T) {
	svc := auth.NewService(aliceRepo(t), newHasher(t), nil)

	p, err := svc.Authenticate(context.Background(), auth.EncodeCredentials("alice", "edit", "s3cret"))
	require.NoError(t, err)
	require.Equal(t, int64(7), p.ID)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, roles.Edit, p.Role)
	require.Equal(t, "s3cret", p.Secret())
}

func TestAuthenticateDenials(t *testing.T) {
	svc := auth.NewService(aliceRepo(t), newHasher(t), nil)

	cases := []struct {
		name   string
		header string
		want   error
		status int
	}{
		{"missing header", "", auth.ErrMalformedCredentials, 401},
		{"wrong secret", auth.EncodeCredentials("alice", "edit", "wrong"), auth.ErrBadSecret, 403},
		{"unknown role", auth.EncodeCredentials("alice", "superuser", "s3cret"), auth.ErrUnknownPrincipal, 403},
		{"unknown user", auth.EncodeCredentials("bob", "edit", "s3cret"), auth.ErrUnknownPrincipal, 403},
		{"role not held", auth.EncodeCredentials("alice", "root", "s3cret"), auth.ErrUnknownPrincipal, 403},
		{"disabled principal", auth.EncodeCredentials("alice", "view", "v1ew"), auth.ErrDisabledPrincipal, 403},
		{"disabled user", auth.EncodeCredentials("mallory", "edit", "pw"), auth.ErrDisabledPrincipal, 403},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tc.header)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, tc.status, auth.StatusFor(err))
		})
	}
}

func TestAuthenticateUnknownRoleSkipsStore(t *testing.T) {
	repo := aliceRepo(t)
	svc := auth.NewService(repo, newHasher(t), nil)

	_, err := svc.Authenticate(context.Background(), auth.EncodeCredentials("alice", "superuser", "s3cret"))
	require.ErrorIs(t, err, auth.ErrUnknownPrincipal)
	require.Zero(t, repo.calls)
}

func TestAuthenticateStorageFailure(t *testing.T) {
	repo := aliceRepo(t)
	repo.err = errors.New("connection refused")
	svc := auth.NewService(repo, newHasher(t), nil)

	_, err := svc.Authenticate(context.Background(), auth.EncodeCredentials("alice", "edit", "s3cret"))
	require.ErrorIs(t, err, auth.ErrStorageUnavailable)
	require.Equal(t, 500, auth.StatusFor(err))
	require.Equal(t, "storage_unavailable", auth.Reason(err))
}

func TestAuthenticateCancelledContext(t *testing.T) {
	svc := auth.NewService(aliceRepo(t), newHasher(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Authenticate(ctx, auth.EncodeCredentials("alice", "edit", "s3cret"))
	require.ErrorIs(t, err, auth.ErrStorageUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAuthenticateIdentityFailuresShareStatus(t *testing.T) {
	svc := auth.NewService(aliceRepo(t), newHasher(t), nil)
	headers := []string{
		auth.EncodeCredentials("nobody", "edit", "x"),
		auth.EncodeCredentials("alice", "edit", "x"),
		auth.EncodeCredentials("alice", "view", "v1ew"),
		auth.EncodeCredentials("alice", "cron", "s3cret"),
	}
	for _, h := range headers {
		_, err := svc.Authenticate(context.Background(), h)
		require.Error(t, err)
		require.Equal(t, 403, auth.StatusFor(err))
	}
}

func TestHasherRoundTrip(t *testing.T) {
	h := newHasher(t)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "correct horse")
	require.NoError(t, err)

	ok, err := h.Verify(ctx, hash, "correct horse")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Verify(ctx, hash, "battery staple")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = h.Verify(ctx, "not-a-hash", "x")
	require.Error(t, err)
}

func TestHasherRejectsBadInput(t *testing.T) {
	_, err := auth.NewHasher(64, 1)
	require.Error(t, err)

	h := newHasher(t)
	_, err = h.Hash(context.Background(), "")
	require.Error(t, err)
	_, err = h.Hash(context.Background(), string(make([]byte, 73)))
	require.Error(t, err)
	require.Equal(t, bcrypt.MinCost, h.Cost())
}
