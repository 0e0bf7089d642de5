package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/observability"
	"github.com/sasswatch/sasswatch-api/internal/platform/httpx"
	"github.com/sasswatch/sasswatch-api/internal/rbac"
)

// Public paths are served without credentials.
var PublicPaths = []string{"/healthz", "/readyz", "/metrics"}

// ReadinessCheck checks one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	Metrics   *observability.Metrics
	Auth      auth.Middleware
	RBAC      rbac.Middleware
	Policy    *rbac.Policy
	Handlers  map[string]http.Handler
	Readiness []ReadinessCheck
}

// NewRouter constructs the chi.Router with the full auth pipeline.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	authn := params.Auth
	authn.Bypass = append(append([]string(nil), PublicPaths...), authn.Bypass...)
	r.Use(authn.Authenticate)

	r.NotFound(httpx.NotFound)
	r.MethodNotAllowed(httpx.MethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyz(params.Logger, params.Readiness))
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			auth.WriteDenial(w, auth.ErrMalformedCredentials)
			return
		}
		http.Redirect(w, r, "/user/"+url.PathEscape(p.Username), http.StatusSeeOther)
	})

	if params.Policy != nil {
		params.Policy.Mount(r, params.RBAC, params.Handlers)
	}
	return r
}

func readyz(logger *slog.Logger, checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[c.Name] = "unavailable"
				if logger != nil {
					logger.Warn("readiness check failed", slog.String("check", c.Name), slog.Any("error", err))
				}
				continue
			}
			report[c.Name] = "ok"
		}
		httpx.JSON(w, status, report)
	}
}
