package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/roles"
)

// Service handles principal administration.
type Service struct {
	repo     RepositoryPort
	hasher   *auth.Hasher
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, hasher *auth.Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, hasher: hasher, logger: logger, validate: validator.New()}
}

type putInput struct {
	Username string `validate:"required,max=64"`
	Role     string `validate:"required"`
	Secret   string `validate:"required,max=72"`
}

// PutPrincipal hashes secret and stores it as the credential of username for
// role, creating the user if needed.
func (s *Service) PutPrincipal(ctx context.Context, username, role, secret string) (Principal, error) {
	in := putInput{Username: norm.NFC.String(strings.TrimSpace(username)), Role: strings.TrimSpace(role), Secret: secret}
	if err := s.validate.Struct(in); err != nil {
		return Principal{}, fmt.Errorf("users: %w", err)
	}
	if err := checkUsername(in.Username); err != nil {
		return Principal{}, err
	}
	if strings.Contains(in.Secret, ":") {
		return Principal{}, fmt.Errorf("%w: secret may not contain ':'", ErrInvalidSecret)
	}
	r, err := roles.Parse(in.Role)
	if err != nil {
		return Principal{}, err
	}
	hash, err := s.hasher.Hash(ctx, in.Secret)
	if err != nil {
		return Principal{}, err
	}
	p, err := s.repo.UpsertPrincipal(ctx, in.Username, r, hash)
	if err != nil {
		return Principal{}, err
	}
	s.logger.InfoContext(ctx, "principal stored", slog.String("username", p.Username), slog.String("role", string(p.Role)))
	return p, nil
}

// SetUserEnabled enables or disables every principal of a user at once.
func (s *Service) SetUserEnabled(ctx context.Context, username string, enabled bool) error {
	if !enabled && IsProtected(username) {
		return fmt.Errorf("%w: %q cannot be disabled", ErrProtectedUser, username)
	}
	if err := s.repo.SetUserEnabled(ctx, username, enabled); err != nil {
		return fmt.Errorf("users: set user enabled: %w", err)
	}
	s.logger.InfoContext(ctx, "user toggled", slog.String("username", username), slog.Bool("enabled", enabled))
	return nil
}

// SetPrincipalEnabled enables or disables one role of a user.
func (s *Service) SetPrincipalEnabled(ctx context.Context, username string, role roles.Role, enabled bool) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", roles.ErrUnknownRole, string(role))
	}
	if !enabled && isProtectedPrincipal(username, role) {
		return fmt.Errorf("%w: %s/%s cannot be disabled", ErrProtectedUser, username, role)
	}
	if err := s.repo.SetPrincipalEnabled(ctx, username, role, enabled); err != nil {
		return fmt.Errorf("users: set principal enabled: %w", err)
	}
	s.logger.InfoContext(ctx, "principal toggled",
		slog.String("username", username), slog.String("role", string(role)), slog.Bool("enabled", enabled))
	return nil
}

// DeletePrincipal revokes one role of a user.
func (s *Service) DeletePrincipal(ctx context.Context, username string, role roles.Role) error {
	if isProtectedPrincipal(username, role) {
		return fmt.Errorf("%w: %s/%s cannot be deleted", ErrProtectedUser, username, role)
	}
	if err := s.repo.DeletePrincipal(ctx, username, role); err != nil {
		return fmt.Errorf("users: delete principal: %w", err)
	}
	s.logger.InfoContext(ctx, "principal deleted", slog.String("username", username), slog.String("role", string(role)))
	return nil
}

// DeleteUser removes a user with everything it owns.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	if IsProtected(username) {
		return fmt.Errorf("%w: %q cannot be deleted", ErrProtectedUser, username)
	}
	if err := s.repo.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("users: delete user: %w", err)
	}
	s.logger.InfoContext(ctx, "user deleted", slog.String("username", username))
	return nil
}

// ListPrincipals returns all principals.
func (s *Service) ListPrincipals(ctx context.Context) ([]Principal, error) {
	return s.repo.ListPrincipals(ctx)
}

// checkUsername rejects names that would not survive the credential header:
// the payload splits on ':' and on whitespace.
func checkUsername(name string) error {
	if strings.Contains(name, ":") || strings.ContainsFunc(name, unicode.IsSpace) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	return nil
}
