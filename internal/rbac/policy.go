package rbac

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/sasswatch/sasswatch-api/internal/platform/httpx"
	"github.com/sasswatch/sasswatch-api/internal/roles"
)

//go:embed routes.yaml
var defaultRoutes []byte

// ErrInvalidPolicy wraps every route policy validation failure.
var ErrInvalidPolicy = errors.New("rbac: invalid route policy")

var policyMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// OwnerRule names an ownership check on one URL parameter.
type OwnerRule struct {
	Table string `yaml:"table"`
	Param string `yaml:"param"`

	table Table
}

// Route is one allow-list entry.
type Route struct {
	Method  string      `yaml:"method"`
	Pattern string      `yaml:"pattern"`
	Roles   []string    `yaml:"roles"`
	Owners  []OwnerRule `yaml:"owners"`
	Self    string      `yaml:"self"`

	allowed roles.Set
}

// Key identifies the route as "METHOD pattern".
func (r Route) Key() string {
	return r.Method + " " + r.Pattern
}

// Allowed returns the validated allow-list.
func (r Route) Allowed() roles.Set {
	return r.allowed
}

// Policy is the validated route table.
type Policy struct {
	Routes []Route `yaml:"routes"`
}

// DefaultPolicy returns the embedded route table.
func DefaultPolicy() (*Policy, error) {
	return LoadPolicy(bytes.NewReader(defaultRoutes))
}

// LoadPolicyFile reads and validates a route table from path.
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: open policy: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// LoadPolicy decodes and validates a route table.
func LoadPolicy(r io.Reader) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) validate() error {
	if len(p.Routes) == 0 {
		return fmt.Errorf("%w: no routes", ErrInvalidPolicy)
	}
	seen := make(map[string]struct{}, len(p.Routes))
	for i := range p.Routes {
		route := &p.Routes[i]
		route.Method = strings.ToUpper(strings.TrimSpace(route.Method))
		route.Pattern = strings.TrimSpace(route.Pattern)
		if _, ok := policyMethods[route.Method]; !ok {
			return fmt.Errorf("%w: route %d: unsupported method %q", ErrInvalidPolicy, i, route.Method)
		}
		if !strings.HasPrefix(route.Pattern, "/") {
			return fmt.Errorf("%w: route %d: pattern %q must start with /", ErrInvalidPolicy, i, route.Pattern)
		}
		if _, dup := seen[route.Key()]; dup {
			return fmt.Errorf("%w: duplicate route %s", ErrInvalidPolicy, route.Key())
		}
		seen[route.Key()] = struct{}{}

		allowed, err := roles.ParseSet(route.Roles)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, route.Key(), err)
		}
		if allowed.Empty() {
			return fmt.Errorf("%w: %s: empty allow-list", ErrInvalidPolicy, route.Key())
		}
		route.allowed = allowed

		if len(route.Owners) > 0 && route.Self != "" {
			return fmt.Errorf("%w: %s: owners and self are exclusive", ErrInvalidPolicy, route.Key())
		}
		for j := range route.Owners {
			rule := &route.Owners[j]
			if rule.Param == "" {
				rule.Param = "id"
			}
			table, err := ParseTable(rule.Table)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, route.Key(), err)
			}
			rule.table = table
			if !hasParam(route.Pattern, rule.Param) {
				return fmt.Errorf("%w: %s: owner parameter {%s} missing from pattern", ErrInvalidPolicy, route.Key(), rule.Param)
			}
		}
		if route.Self != "" && !hasParam(route.Pattern, route.Self) {
			return fmt.Errorf("%w: %s: self parameter {%s} missing from pattern", ErrInvalidPolicy, route.Key(), route.Self)
		}
	}
	return nil
}

func hasParam(pattern, name string) bool {
	return strings.Contains(pattern, "{"+name+"}")
}

// Mount registers every route on r behind its authorization chain. handlers
// is keyed by Route.Key; routes without a handler answer 501 once the caller
// has passed every check.
func (p *Policy) Mount(r chi.Router, m Middleware, handlers map[string]http.Handler) {
	for _, route := range p.Routes {
		chain := []func(http.Handler) http.Handler{m.RequireRoles(route.allowed)}
		for _, rule := range route.Owners {
			chain = append(chain, m.RequireOwner(rule.table, rule.Param))
		}
		if route.Self != "" {
			chain = append(chain, m.RequireSelf(route.Self))
		}
		h, ok := handlers[route.Key()]
		if !ok {
			h = http.HandlerFunc(notImplemented)
		}
		r.With(chain...).Method(route.Method, route.Pattern, h)
	}
}

func notImplemented(w http.ResponseWriter, _ *http.Request) {
	httpx.Problem(w, http.StatusNotImplemented, http.StatusText(http.StatusNotImplemented), "")
}
