package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used for new secrets.
const DefaultCost = 10

// Hasher hashes and verifies role secrets with bcrypt. Verification is CPU
// bound, so at most a fixed number of comparisons run at once.
type Hasher struct {
	cost  int
	sem   *semaphore.Weighted
	dummy []byte
}

// NewHasher builds a Hasher. A concurrency of zero or less selects
// GOMAXPROCS.
func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("auth: dummy secret: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(concurrency)), dummy: dummy}, nil
}

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("auth: empty secret")
	}
	if len(secret) > maxSecretBytes {
		return "", fmt.Errorf("auth: secret longer than %d bytes", maxSecretBytes)
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches hash. A non-nil error means the
// comparison could not run: the context ended or the stored hash is corrupt.
func (h *Hasher) Verify(ctx context.Context, hash, secret string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Burn spends one comparison against a throwaway hash so that denials which
// never reach Verify take about as long as a wrong secret.
func (h *Hasher) Burn(ctx context.Context) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer h.sem.Release(1)
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte("x"))
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int {
	return h.cost
}
