package roles

// Role identifies the capability tier a credential was issued for. The set of
// valid roles is closed; see registry.go.
type Role string

// Supported roles. Every role carries its own separately maintained secret.
const (
	View      Role = "view"
	Maintain  Role = "main"
	Edit      Role = "edit"
	Admin     Role = "root"
	Cron      Role = "cron"
	AuditUser Role = "read"
	AuditAll  Role = "audt"
)

// Info describes what a role means to the authorizers.
type Info struct {
	Role Role
	// Rank orders roles by breadth of access, lowest first.
	Rank int
	// BypassOwnership lets the role act on records owned by any user.
	BypassOwnership bool
	// CrossUser lets the role address other users' profiles.
	CrossUser   bool
	Description string
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r belongs to the registry.
func (r Role) Valid() bool {
	_, ok := registry[r]
	return ok
}

// BypassesOwnership reports whether r skips the resource owner check.
// Unknown roles never bypass.
func (r Role) BypassesOwnership() bool {
	return registry[r].BypassOwnership
}

// CrossUser reports whether r may address profiles of other users.
func (r Role) CrossUser() bool {
	return registry[r].CrossUser
}
