// Package database opens the *orm.DB the server runs on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mickamy/contentorm/internal/config"
	"github.com/mickamy/contentorm/orm"
)

// DriverName returns the database/sql driver registered for dialect.
func DriverName(d orm.Dialect) string {
	switch d.Name() {
	case orm.NameMySQL:
		return "mysql"
	case orm.NamePostgreSQL:
		return "pgx"
	default:
		return "sqlite"
	}
}

// Open connects to the database described by cfg and pings it. MySQL
// connections always parse DATETIME columns into time.Time.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*orm.DB, error) {
	d, err := orm.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	dsn := cfg.DSN
	if d.Name() == orm.NameMySQL {
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("database: parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		dsn = mc.FormatDSN()
	}
	if d.Name() == orm.NameSQLite {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	sqlDB, err := sql.Open(DriverName(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", d.Name(), err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: ping %s: %w", d.Name(), err)
	}
	return orm.New(sqlDB, d), nil
}

// ensureSQLiteDir creates the directory of a file-backed SQLite database.
func ensureSQLiteDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("database: create %s: %w", dir, err)
	}
	return nil
}
