package users

import (
	_ "embed"
	"strings"

	"github.com/sasswatch/sasswatch-api/internal/rbac"
	"github.com/sasswatch/sasswatch-api/internal/roles"
)

var (
	//go:embed schema/postgres.sql
	postgresSchema string
	//go:embed schema/sqlite.sql
	sqliteSchema string
)

const rolesPlaceholder = "{{roles}}"

// renderSchema fills the role CHECK constraint from the role registry so the
// database accepts exactly the roles the service knows.
func renderSchema(ddl string) string {
	all := roles.All()
	quoted := make([]string, 0, len(all))
	for _, info := range all {
		quoted = append(quoted, "'"+strings.ReplaceAll(string(info.Role), "'", "''")+"'")
	}
	return strings.ReplaceAll(ddl, rolesPlaceholder, strings.Join(quoted, ", "))
}

// ownerQueries maps each owned table to a fixed lookup. Table names never
// come from request data.
var ownerQueries = map[rbac.Table]string{
	rbac.Calendar: `SELECT owner_id FROM calendar WHERE id = $1`,
	rbac.Agenda:   `SELECT owner_id FROM agenda WHERE id = $1`,
	rbac.Message:  `SELECT owner_id FROM message WHERE id = $1`,
	rbac.Event:    `SELECT c.owner_id FROM event e JOIN calendar c ON c.id = e.calendar_id WHERE e.id = $1`,
}
