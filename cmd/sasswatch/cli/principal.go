package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sasswatch/sasswatch-api/internal/roles"
	"github.com/sasswatch/sasswatch-api/internal/users"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// PrincipalAdmin is the administration surface of the principal store.
type PrincipalAdmin interface {
	PutPrincipal(ctx context.Context, username, role, secret string) (users.Principal, error)
	SetUserEnabled(ctx context.Context, username string, enabled bool) error
	SetPrincipalEnabled(ctx context.Context, username string, role roles.Role, enabled bool) error
	DeletePrincipal(ctx context.Context, username string, role roles.Role) error
	DeleteUser(ctx context.Context, username string) error
	ListPrincipals(ctx context.Context) ([]users.Principal, error)
}

// Options carries the process streams.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) defaults() {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// PrincipalCLI manages principals from the command line.
type PrincipalCLI struct {
	admin PrincipalAdmin
}

// NewPrincipalCLI wraps admin.
func NewPrincipalCLI(admin PrincipalAdmin) (*PrincipalCLI, error) {
	if admin == nil {
		return nil, errors.New("principal cli: admin not configured")
	}
	return &PrincipalCLI{admin: admin}, nil
}

// PrincipalRow is one line of the list output.
type PrincipalRow struct {
	Username    string `json:"username"`
	Role        string `json:"role"`
	Enabled     bool   `json:"enabled"`
	UserEnabled bool   `json:"user_enabled"`
}

const principalUsage = `usage: sasswatch principal <command> [flags]

commands:
  put [--secret s] <user> <role>   store a credential; the secret is read from stdin when omitted
  enable <user> [role]             enable a user, or one role of it
  disable <user> [role]            disable a user, or one role of it
  delete <user> [role]             delete a user, or one role of it
  list [--json]                    list every principal
`

// Run dispatches args and returns the process exit code.
func (c *PrincipalCLI) Run(ctx context.Context, args []string, opts Options) int {
	opts.defaults()
	if len(args) == 0 {
		_, _ = fmt.Fprint(opts.Stderr, principalUsage)
		return ExitUsage
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "put":
		return c.put(ctx, rest, opts)
	case "enable":
		return c.toggle(ctx, rest, true, opts)
	case "disable":
		return c.toggle(ctx, rest, false, opts)
	case "delete":
		return c.delete(ctx, rest, opts)
	case "list":
		return c.list(ctx, rest, opts)
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(opts.Stdout, principalUsage)
		return ExitOK
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "principal: unknown command %q\n", cmd)
		_, _ = fmt.Fprint(opts.Stderr, principalUsage)
		return ExitUsage
	}
}

func (c *PrincipalCLI) put(ctx context.Context, args []string, opts Options) int {
	fs := newFlagSet("put", opts)
	secret := fs.String("secret", "", "role secret")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 2 {
		_, _ = fmt.Fprintln(opts.Stderr, "principal put: expected <user> <role>")
		return ExitUsage
	}
	if *secret == "" {
		line, err := bufio.NewReader(opts.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintf(opts.Stderr, "principal put: read secret: %v\n", err)
			return ExitError
		}
		*secret = strings.TrimRight(line, "\r\n")
	}
	p, err := c.admin.PutPrincipal(ctx, fs.Arg(0), fs.Arg(1), *secret)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "principal put: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(opts.Stdout, "stored %s/%s\n", p.Username, p.Role)
	return ExitOK
}

func (c *PrincipalCLI) toggle(ctx context.Context, args []string, enabled bool, opts Options) int {
	name := "enable"
	if !enabled {
		name = "disable"
	}
	user, role, code := userAndRole(name, args, opts)
	if code != ExitOK {
		return code
	}
	var err error
	if role == "" {
		err = c.admin.SetUserEnabled(ctx, user, enabled)
	} else {
		err = c.admin.SetPrincipalEnabled(ctx, user, role, enabled)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "principal %s: %v\n", name, err)
		return ExitError
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%sd %s\n", name, target(user, role))
	return ExitOK
}

func (c *PrincipalCLI) delete(ctx context.Context, args []string, opts Options) int {
	user, role, code := userAndRole("delete", args, opts)
	if code != ExitOK {
		return code
	}
	var err error
	if role == "" {
		err = c.admin.DeleteUser(ctx, user)
	} else {
		err = c.admin.DeletePrincipal(ctx, user, role)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "principal delete: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(opts.Stdout, "deleted %s\n", target(user, role))
	return ExitOK
}

func (c *PrincipalCLI) list(ctx context.Context, args []string, opts Options) int {
	fs := newFlagSet("list", opts)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	principals, err := c.admin.ListPrincipals(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "principal list: %v\n", err)
		return ExitError
	}
	rows := make([]PrincipalRow, 0, len(principals))
	for _, p := range principals {
		rows = append(rows, PrincipalRow{Username: p.Username, Role: string(p.Role), Enabled: p.Enabled, UserEnabled: p.UserEnabled})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Username == rows[j].Username {
			return rows[i].Role < rows[j].Role
		}
		return rows[i].Username < rows[j].Username
	})

	if *asJSON {
		if err := json.NewEncoder(opts.Stdout).Encode(rows); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "principal list: encode json: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "USER\tROLE\tENABLED\tUSER ENABLED")
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", row.Username, row.Role, row.Enabled, row.UserEnabled)
	}
	_ = tw.Flush()
	return ExitOK
}

func newFlagSet(name string, opts Options) *flag.FlagSet {
	fs := flag.NewFlagSet("principal "+name, flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	return fs
}

func userAndRole(name string, args []string, opts Options) (string, roles.Role, int) {
	if len(args) < 1 || len(args) > 2 {
		_, _ = fmt.Fprintf(opts.Stderr, "principal %s: expected <user> [role]\n", name)
		return "", "", ExitUsage
	}
	if len(args) == 1 {
		return args[0], "", ExitOK
	}
	role, err := roles.Parse(args[1])
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "principal %s: %v\n", name, err)
		return "", "", ExitUsage
	}
	return args[0], role, ExitOK
}

func target(user string, role roles.Role) string {
	if role == "" {
		return user
	}
	return user + "/" + string(role)
}
