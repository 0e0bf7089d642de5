package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Table names a table whose rows carry an owner.
type Table int

const (
	Calendar Table = iota + 1
	Agenda
	Message
	// Event rows are owned through their calendar.
	Event
)

var tableNames = map[Table]string{
	Calendar: "calendar",
	Agenda:   "agenda",
	Message:  "message",
	Event:    "event",
}

func (t Table) String() string {
	if name, ok := tableNames[t]; ok {
		return name
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// Valid reports whether t is one of the owned tables.
func (t Table) Valid() bool {
	_, ok := tableNames[t]
	return ok
}

// ParseTable resolves a case-insensitive table name.
func ParseTable(name string) (Table, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range tableNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("rbac: unknown owned table %q", name)
}

// OwnerRepository resolves record ownership. Both methods return
// shared.ErrNotFound when the row is absent.
type OwnerRepository interface {
	FindOwner(ctx context.Context, table Table, id int64) (int64, error)
	FindUsername(ctx context.Context, userID int64) (string, error)
}
