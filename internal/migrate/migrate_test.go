package migrate_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mickamy/contentorm/internal/migrate"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
)

func openSQLite(t *testing.T) *orm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "migrate.db") + "?_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return orm.New(sqlDB, orm.SQLite)
}

func tableExists(t *testing.T, db *orm.DB, name string) bool {
	t.Helper()

	var n int
	err := db.Raw().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return n == 1
}

func TestUp(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	ctx := t.Context()

	if err := migrate.Up(ctx, db); err != nil {
		t.Fatalf("Up: %v", err)
	}
	// a second run has nothing to apply
	if err := migrate.Up(ctx, db); err != nil {
		t.Fatalf("Up again: %v", err)
	}

	for _, table := range []string{"admin_users", "admin_roles", "admin_users_roles"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing", table)
		}
	}
	v, err := migrate.Version(ctx, db)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 1 {
		t.Errorf("Version = %d, want 1", v)
	}
}

func TestSyncContentTypes(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	registry := schema.NewRegistry()
	m, err := schema.ParseModel([]byte(`
name: post
options:
  timestamps: true
attributes:
  title:
    type: string
  tags:
    collection: label
    via: posts
`), schema.KindContentType)
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}
	label, err := schema.ParseModel([]byte(`
name: label
attributes:
  name:
    type: string
  posts:
    collection: post
    via: tags
`), schema.KindContentType)
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}
	for _, model := range []*schema.Model{m, label} {
		if err := registry.Register(model); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := registry.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for range 2 {
		if err := migrate.SyncContentTypes(t.Context(), db, registry); err != nil {
			t.Fatalf("SyncContentTypes: %v", err)
		}
	}
	for _, table := range []string{"posts", "labels", "labels_posts__posts_tags", "upload_file", "upload_file_morph"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing", table)
		}
	}
}
