package roles

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRole is returned when a role string is outside the registry.
var ErrUnknownRole = errors.New("roles: unknown role")

// registry is the single source of truth for valid roles. It is never
// written after package initialisation.
var registry = map[Role]Info{
	View: {
		Role:        View,
		Rank:        1,
		Description: "read-only access to the user's own calendars and events",
	},
	AuditUser: {
		Role:        AuditUser,
		Rank:        2,
		Description: "read-only access to all of the user's own assets, including agendas and messages",
	},
	Maintain: {
		Role:        Maintain,
		Rank:        3,
		Description: "read access to own calendars and events, may acknowledge or delete single events",
	},
	Edit: {
		Role:        Edit,
		Rank:        4,
		Description: "read-write access to all of the user's own assets",
	},
	Cron: {
		Role:            Cron,
		Rank:            5,
		BypassOwnership: true,
		Description:     "adds and deletes individual events for any calendar, internal use only",
	},
	AuditAll: {
		Role:            AuditAll,
		Rank:            6,
		BypassOwnership: true,
		CrossUser:       true,
		Description:     "read-only access to all assets regardless of ownership",
	},
	Admin: {
		Role:            Admin,
		Rank:            7,
		BypassOwnership: true,
		CrossUser:       true,
		Description:     "read-write access to all assets regardless of ownership",
	},
}

// Lookup returns the registry entry for r.
func Lookup(r Role) (Info, bool) {
	info, ok := registry[r]
	return info, ok
}

// Parse converts a raw role string into a Role. The match is exact: role
// tags are case-sensitive and never trimmed.
func Parse(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// All returns every registered role ordered by rank.
func All() []Info {
	infos := make([]Info, 0, len(registry))
	for _, info := range registry {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Rank < infos[j].Rank })
	return infos
}

// Set is an immutable allow-list of roles.
type Set struct {
	members map[Role]struct{}
}

// NewSet builds a Set from the given roles. It fails on any role outside the
// registry so that a typo in an allow-list surfaces at load time.
func NewSet(rs ...Role) (Set, error) {
	members := make(map[Role]struct{}, len(rs))
	for _, r := range rs {
		if !r.Valid() {
			return Set{}, fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
		}
		members[r] = struct{}{}
	}
	return Set{members: members}, nil
}

// MustSet is like NewSet but panics on an unknown role. Intended for
// package-level allow-lists.
func MustSet(rs ...Role) Set {
	s, err := NewSet(rs...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSet builds a Set from raw role strings.
func ParseSet(raw []string) (Set, error) {
	rs := make([]Role, 0, len(raw))
	for _, s := range raw {
		r, err := Parse(s)
		if err != nil {
			return Set{}, err
		}
		rs = append(rs, r)
	}
	return NewSet(rs...)
}

// Has reports whether r is a member of the set.
func (s Set) Has(r Role) bool {
	_, ok := s.members[r]
	return ok
}

// Len returns the number of roles in the set.
func (s Set) Len() int {
	return len(s.members)
}

// Empty reports whether the set admits no role at all.
func (s Set) Empty() bool {
	return len(s.members) == 0
}

// Roles returns the members ordered by rank.
func (s Set) Roles() []Role {
	out := make([]Role, 0, len(s.members))
	for r := range s.members {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return registry[out[i]].Rank < registry[out[j]].Rank })
	return out
}

// String renders the set as a comma separated list.
func (s Set) String() string {
	names := make([]string, 0, len(s.members))
	for _, r := range s.Roles() {
		names = append(names, string(r))
	}
	return strings.Join(names, ",")
}
