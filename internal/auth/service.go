package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/shared"
)

// Service authenticates requests against the principal store.
type Service struct {
	repo   Repository
	hasher *Hasher
	logger *slog.Logger
}

// NewService constructs a Service. A nil logger discards output.
func NewService(repo Repository, hasher *Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, hasher: hasher, logger: logger}
}

// Authenticate turns a raw Authorization header into a SessionPrincipal.
// Checks run in a fixed order and stop at the first failure; the returned
// error names the reason for logs only. Callers must surface StatusFor(err)
// and nothing else.
func (s *Service) Authenticate(ctx context.Context, header string) (SessionPrincipal, error) {
	creds, err := ParseCredentials(header)
	if err != nil {
		s.logger.InfoContext(ctx, "authentication rejected", slog.String("reason", Reason(err)), slog.Any("error", err))
		return SessionPrincipal{}, err
	}

	role, err := roles.Parse(creds.Role)
	if err != nil {
		return s.deny(ctx, creds, fmt.Errorf("%w: role %q is not registered", ErrUnknownPrincipal, creds.Role))
	}

	user, err := s.repo.FindUserByName(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return s.deny(ctx, creds, fmt.Errorf("%w: no user %q", ErrUnknownPrincipal, creds.Username))
		}
		return s.fail(ctx, creds, "find user", err)
	}
	if !user.Enabled {
		return s.deny(ctx, creds, fmt.Errorf("%w: user %q is disabled", ErrDisabledPrincipal, creds.Username))
	}

	principal, err := s.repo.FindPrincipal(ctx, user.ID, role)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return s.deny(ctx, creds, fmt.Errorf("%w: user %q does not hold role %q", ErrUnknownPrincipal, creds.Username, role))
		}
		return s.fail(ctx, creds, "find principal", err)
	}
	if !principal.Enabled {
		return s.deny(ctx, creds, fmt.Errorf("%w: role %q is disabled for user %q", ErrDisabledPrincipal, role, creds.Username))
	}

	ok, err := s.hasher.Verify(ctx, principal.PasswordHash, creds.Secret)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(ctx, creds, "verify secret", err)
		}
		s.logger.ErrorContext(ctx, "stored secret hash unusable",
			slog.String("username", creds.Username), slog.String("role", string(role)), slog.Any("error", err))
		return SessionPrincipal{}, fmt.Errorf("%w: stored hash for %q/%q unusable", ErrBadSecret, creds.Username, role)
	}
	if !ok {
		err := fmt.Errorf("%w: wrong secret for %q/%q", ErrBadSecret, creds.Username, role)
		s.logger.WarnContext(ctx, "authentication rejected",
			slog.String("username", creds.Username), slog.String("role", string(role)), slog.String("reason", Reason(err)))
		return SessionPrincipal{}, err
	}

	return NewSessionPrincipal(user.ID, user.Name, role, creds.Secret), nil
}

// deny logs an identity failure and pads its latency to that of a secret
// comparison.
func (s *Service) deny(ctx context.Context, creds Credentials, err error) (SessionPrincipal, error) {
	s.hasher.Burn(ctx)
	s.logger.WarnContext(ctx, "authentication rejected",
		slog.String("username", creds.Username),
		slog.String("role", creds.Role),
		slog.String("reason", Reason(err)),
		slog.Any("error", err))
	return SessionPrincipal{}, err
}

func (s *Service) fail(ctx context.Context, creds Credentials, op string, cause error) (SessionPrincipal, error) {
	err := fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, cause)
	level := slog.LevelError
	if ctx.Err() != nil {
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, "authentication aborted",
		slog.String("username", creds.Username),
		slog.String("role", creds.Role),
		slog.Any("error", err))
	return SessionPrincipal{}, err
}
