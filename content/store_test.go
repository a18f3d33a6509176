package content_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testContext(t *testing.T) context.Context {
	return orm.WithClock(t.Context(), fixedClock{testNow})
}

// newStore opens a fresh SQLite database holding the tables of every
// model under testdata.
func newStore(t *testing.T) (*content.Store, *orm.DB) {
	t.Helper()

	registry := schema.NewRegistry()
	if err := registry.LoadDir("testdata"); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := registry.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	dsn := "file:" + filepath.Join(t.TempDir(), "content.db") + "?_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	models := append(registry.Models(), registry.Groups()...)
	for _, m := range models {
		for _, stmt := range schema.Statements(m, orm.SQLite) {
			if _, err := sqlDB.Exec(stmt); err != nil {
				t.Fatalf("exec %s: %v", stmt, err)
			}
		}
	}

	db := orm.New(sqlDB, orm.SQLite)
	return content.NewStore(db, registry), db
}

func repo(t *testing.T, s *content.Store, uid string) *content.Repository {
	t.Helper()

	r, err := s.Repository(uid)
	if err != nil {
		t.Fatalf("Repository(%s): %v", uid, err)
	}
	return r
}

func mustCreate(t *testing.T, r *content.Repository, values content.Entry) content.Entry {
	t.Helper()

	e, err := r.Create(testContext(t), values)
	if err != nil {
		t.Fatalf("Create %s: %v", r.Model().UID, err)
	}
	return e
}

func countRows(t *testing.T, db *orm.DB, table string) int {
	t.Helper()

	var n int
	if err := db.Raw().QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func entryList(t *testing.T, v any) []content.Entry {
	t.Helper()

	list, ok := v.([]content.Entry)
	if !ok {
		t.Fatalf("value %#v is not a list of entries", v)
	}
	return list
}

func entryOf(t *testing.T, v any) content.Entry {
	t.Helper()

	e, ok := v.(content.Entry)
	if !ok {
		t.Fatalf("value %#v is not an entry", v)
	}
	return e
}
