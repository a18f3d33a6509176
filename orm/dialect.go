package orm

import "fmt"

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Name returns the engine name: "mysql", "postgres" or "sqlite3".
	// The names match the ones used by migration tooling.
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string

	// UseReturning reports whether INSERT should use a RETURNING clause
	// to retrieve the auto-generated primary key (PostgreSQL) rather
	// than relying on LastInsertId (MySQL, SQLite).
	UseReturning() bool

	// ReturningClause returns the RETURNING clause appended to INSERT
	// statements. Returns an empty string for dialects that do not
	// use RETURNING.
	ReturningClause(pk string) string
}

// Dialect names.
const (
	NameMySQL      = "mysql"
	NamePostgreSQL = "postgres"
	NameSQLite     = "sqlite3"
)

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite.
var SQLite Dialect = sqliteDialect{}

// DialectByName returns the Dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case NameMySQL:
		return MySQL, nil
	case NamePostgreSQL, "postgresql", "pg":
		return PostgreSQL, nil
	case NameSQLite, "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("orm: unknown dialect %q", name)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                    { return NameMySQL }
func (mysqlDialect) Placeholder(_ int) string        { return "?" }
func (mysqlDialect) QuoteIdent(name string) string   { return "`" + name + "`" }
func (mysqlDialect) UseReturning() bool              { return false }
func (mysqlDialect) ReturningClause(_ string) string { return "" }

type postgresDialect struct{}

func (postgresDialect) Name() string                     { return NamePostgreSQL }
func (postgresDialect) Placeholder(index int) string     { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string    { return `"` + name + `"` }
func (postgresDialect) UseReturning() bool               { return true }
func (postgresDialect) ReturningClause(pk string) string { return ` RETURNING "` + pk + `"` }

type sqliteDialect struct{}

func (sqliteDialect) Name() string                    { return NameSQLite }
func (sqliteDialect) Placeholder(_ int) string        { return "?" }
func (sqliteDialect) QuoteIdent(name string) string   { return `"` + name + `"` }
func (sqliteDialect) UseReturning() bool              { return false }
func (sqliteDialect) ReturningClause(_ string) string { return "" }

// positional reports whether d binds parameters with a bare "?".
func positional(d Dialect) bool {
	return d.Placeholder(1) == "?"
}
