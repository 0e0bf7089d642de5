package users

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// lookupTimeout bounds a shared lookup once it no longer follows any single
// caller's context.
const lookupTimeout = 5 * time.Second

// coalesce runs fn once per key for all concurrent callers. fn runs under a
// context detached from the caller that started it, so one caller giving up
// never fails the others; each caller still stops waiting when its own ctx
// ends.
func coalesce[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := g.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
