// Package platform names the database dialects formkit can generate SQL for and
// the per-dialect conventions the rdb layer depends on.
package platform

import (
	"strings"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	MariaDB  = "mariadb"
)

// Driver names registered with database/sql by the imported drivers.
const (
	DriverPgx   = "pgx"
	DriverPq    = "postgres"
	DriverMySQL = "mysql"
)

func NormalizeDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres", "pq":
		return Postgres
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	default:
		return ""
	}
}

// DriverName returns the database/sql driver name to use for a dialect.
// usePq selects lib/pq instead of pgx for PostgreSQL.
func DriverName(dialect string, usePq bool) string {
	switch NormalizeDialect(dialect) {
	case Postgres:
		if usePq {
			return DriverPq
		}
		return DriverPgx
	case MySQL, MariaDB:
		return DriverMySQL
	default:
		return ""
	}
}

// UsesReturning reports whether generated keys are read back with a RETURNING
// clause. Dialects that do not use it rely on sql.Result.LastInsertId.
func UsesReturning(dialect string) bool {
	return NormalizeDialect(dialect) == Postgres
}

// UsesNumberedPlaceholders reports whether the dialect expects $1, $2... instead of ?.
func UsesNumberedPlaceholders(dialect string) bool {
	return NormalizeDialect(dialect) == Postgres
}

// LikeEscape returns the ESCAPE clause appended to LIKE conditions whose
// pattern escapes wildcards with a backslash. MySQL and MariaDB already use the
// backslash as their default escape character, and '\' is not a valid literal
// there.
func LikeEscape(dialect string) string {
	if NormalizeDialect(dialect) == Postgres {
		return ` ESCAPE '\'`
	}
	return ""
}
