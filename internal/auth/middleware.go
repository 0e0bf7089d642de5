package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sasswatch/sasswatch-api/internal/platform/httpx"
)

// Realm is advertised in the WWW-Authenticate challenge.
const Realm = "sasswatch"

// Decision stages.
const (
	StageAuthenticate = "authenticate"
	StageRoute        = "route"
	StageResource     = "resource"
	StageUser         = "user"
)

// Decision describes one allow or deny verdict for the audit trail.
type Decision struct {
	Stage      string
	Outcome    string
	Reason     string
	UserID     int64
	Username   string
	Role       string
	Method     string
	Path       string
	RemoteAddr string
	RequestID  string
	At         time.Time
}

// DecisionObserver counts verdicts. outcome is always an Outcome label.
type DecisionObserver interface {
	ObserveDecision(stage, outcome string)
}

// DecisionRecorder persists verdicts. Implementations must not block the
// request; a failure never changes the verdict.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d Decision) error
}

// NewDecision builds a Decision for r. err nil means allow.
func NewDecision(r *http.Request, stage string, p SessionPrincipal, err error) Decision {
	return Decision{
		Stage:      stage,
		Outcome:    Outcome(err),
		Reason:     Reason(err),
		UserID:     p.ID,
		Username:   p.Username,
		Role:       string(p.Role),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		RequestID:  middleware.GetReqID(r.Context()),
		At:         time.Now().UTC(),
	}
}

// Middleware authenticates every request not on the bypass list.
type Middleware struct {
	Service  *Service
	Logger   *slog.Logger
	Bypass   []string
	Metrics  DecisionObserver
	Recorder DecisionRecorder
}

// Authenticate resolves the Authorization header into a SessionPrincipal
// stored in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	bypass := make(map[string]struct{}, len(m.Bypass))
	for _, path := range m.Bypass {
		bypass[strings.TrimSpace(path)] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := bypass[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Service.Authenticate(r.Context(), r.Header.Get("Authorization"))
		m.Report(r, StageAuthenticate, principal, err)
		if err != nil {
			WriteDenial(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// Report feeds a verdict to the configured observer and recorder.
func (m Middleware) Report(r *http.Request, stage string, p SessionPrincipal, err error) {
	d := NewDecision(r, stage, p, err)
	if m.Metrics != nil {
		m.Metrics.ObserveDecision(d.Stage, d.Outcome)
	}
	if m.Recorder == nil {
		return
	}
	if recErr := m.Recorder.RecordDecision(context.WithoutCancel(r.Context()), d); recErr != nil && m.Logger != nil {
		m.Logger.Error("record auth decision", slog.String("stage", stage), slog.Any("error", recErr))
	}
}

// WriteDenial writes the generic problem body for err. The body never names
// the failing check.
func WriteDenial(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", Scheme+` realm="`+Realm+`", charset="UTF-8"`)
	}
	httpx.Problem(w, status, http.StatusText(status), "")
}
