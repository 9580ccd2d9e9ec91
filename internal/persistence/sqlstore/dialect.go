// Package sqlstore implements persistence.DurableStore on top of
// database/sql, shared between SQLite (mattn/go-sqlite3) and PostgreSQL
// (jackc/pgx/v5's stdlib driver). The two dialects differ only in
// placeholder syntax and a handful of column types, so one query set
// serves both.
package sqlstore

import "fmt"

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// ph returns a single bind placeholder for position i (1-indexed).
func ph(driver string, i int) string {
	if driver != DriverPostgres {
		return "?"
	}
	return fmt.Sprintf("$%d", i)
}
