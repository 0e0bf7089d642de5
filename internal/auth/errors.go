package auth

import (
	"errors"
	"net/http"
)

// Denial taxonomy. Every failure returned by this package wraps exactly one
// of these; the wrapped message carries the operator-facing detail.
var (
	// ErrMalformedCredentials: header absent, unparseable or incomplete.
	ErrMalformedCredentials = errors.New("malformed credentials")
	// ErrUnknownPrincipal: unknown role, username or (username, role) pair.
	ErrUnknownPrincipal = errors.New("unknown principal")
	// ErrDisabledPrincipal: user or role administratively disabled.
	ErrDisabledPrincipal = errors.New("disabled principal")
	// ErrBadSecret: secret does not match the stored hash.
	ErrBadSecret = errors.New("bad secret")
	// ErrRouteNotPermitted: role is not in the route allow-list.
	ErrRouteNotPermitted = errors.New("route not permitted")
	// ErrResourceNotOwned: record absent or owned by someone else.
	ErrResourceNotOwned = errors.New("resource not owned")
	// ErrStorageUnavailable: the principal store failed. A server fault.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StatusFor maps a denial to the HTTP status surfaced to the caller. Identity
// failures share one status so callers cannot tell them apart.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusInternalServerError
	case errors.Is(err, ErrMalformedCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnknownPrincipal),
		errors.Is(err, ErrDisabledPrincipal),
		errors.Is(err, ErrBadSecret),
		errors.Is(err, ErrRouteNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, ErrResourceNotOwned):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Outcome returns the coarse verdict label exported on metrics: "allow",
// "deny" or "error" for storage faults. Denial reasons never leave the
// process through it.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, ErrStorageUnavailable):
		return "error"
	default:
		return "deny"
	}
}

// Reason returns a stable label for err, used in logs and audit records.
func Reason(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrMalformedCredentials):
		return "malformed_credentials"
	case errors.Is(err, ErrUnknownPrincipal):
		return "unknown_principal"
	case errors.Is(err, ErrDisabledPrincipal):
		return "disabled_principal"
	case errors.Is(err, ErrBadSecret):
		return "bad_secret"
	case errors.Is(err, ErrRouteNotPermitted):
		return "route_not_permitted"
	case errors.Is(err, ErrResourceNotOwned):
		return "resource_not_owned"
	default:
		return "error"
	}
}
