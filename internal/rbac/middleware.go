package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/platform/httpx"
	"github.com/sasswatch/sasswatch-api/internal/roles"
)

// Reporter receives every authorization verdict. auth.Middleware satisfies it.
type Reporter interface {
	Report(r *http.Request, stage string, p auth.SessionPrincipal, err error)
}

// Middleware wires authorization checks for HTTP handlers. It expects
// auth.Middleware to have run first.
type Middleware struct {
	Resources *ResourceAuthorizer
	Logger    *slog.Logger
	Reporter  Reporter
}

// RequireRoles admits principals whose role is in allowed.
func (m Middleware) RequireRoles(allowed roles.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				auth.WriteDenial(w, auth.ErrMalformedCredentials)
				return
			}
			if !AuthorizeRoute(p, allowed) {
				err := fmt.Errorf("%w: role %q not in [%s] for %s %s", auth.ErrRouteNotPermitted, p.Role, allowed, r.Method, r.URL.Path)
				m.logDenial(r, auth.StageRoute, p, err)
				m.report(r, auth.StageRoute, p, err)
				auth.WriteDenial(w, err)
				return
			}
			m.report(r, auth.StageRoute, p, nil)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner admits principals that own the row of table named by the URL
// parameter param, or whose role bypasses ownership.
func (m Middleware) RequireOwner(table Table, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				auth.WriteDenial(w, auth.ErrMalformedCredentials)
				return
			}
			id, err := ParseID(chi.URLParam(r, param))
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "invalid "+param)
				return
			}
			allowed, err := m.Resources.AuthorizeResource(r.Context(), p, table, id)
			if err == nil && !allowed {
				err = fmt.Errorf("%w: %s %d", auth.ErrResourceNotOwned, table, id)
			}
			if err != nil {
				m.logDenial(r, auth.StageResource, p, err)
				m.report(r, auth.StageResource, p, err)
				auth.WriteDenial(w, err)
				return
			}
			m.report(r, auth.StageResource, p, nil)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelf admits principals addressing their own profile, named by the
// URL parameter param, or holding a cross-user role. A foreign profile looks
// absent.
func (m Middleware) RequireSelf(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				auth.WriteDenial(w, auth.ErrMalformedCredentials)
				return
			}
			username := chi.URLParam(r, param)
			if !AuthorizeUser(p, username) {
				err := fmt.Errorf("%w: user %q", auth.ErrResourceNotOwned, username)
				m.logDenial(r, auth.StageUser, p, err)
				m.report(r, auth.StageUser, p, err)
				auth.WriteDenial(w, err)
				return
			}
			m.report(r, auth.StageUser, p, nil)
			next.ServeHTTP(w, r)
		})
	}
}

// ParseID accepts decimal digits only: no sign, no whitespace.
func ParseID(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("rbac: empty id")
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("rbac: id %q is not a non-negative integer", raw)
		}
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (m Middleware) report(r *http.Request, stage string, p auth.SessionPrincipal, err error) {
	if m.Reporter != nil {
		m.Reporter.Report(r, stage, p, err)
	}
}

func (m Middleware) logDenial(r *http.Request, stage string, p auth.SessionPrincipal, err error) {
	if m.Logger == nil {
		return
	}
	level := slog.LevelWarn
	if auth.StatusFor(err) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	m.Logger.Log(r.Context(), level, "authorization denied",
		slog.String("stage", stage),
		slog.String("username", p.Username),
		slog.String("role", string(p.Role)),
		slog.String("reason", auth.Reason(err)),
		slog.Any("error", err))
}
