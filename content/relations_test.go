package content_test

import (
	"net/http"
	"testing"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/internal/apperr"
)

func TestOneToManySync(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := testContext(t)
	articles := repo(t, s, "article")
	writers := repo(t, s, "writer")

	a1 := mustCreate(t, articles, content.Entry{"title": "a1"})
	a2 := mustCreate(t, articles, content.Entry{"title": "a2"})
	a3 := mustCreate(t, articles, content.Entry{"title": "a3"})

	w := mustCreate(t, writers, content.Entry{"name": "Ann", "articles": []any{a1.ID(), a2.ID()}})
	if got := entryList(t, w["articles"]); len(got) != 2 || got[0].ID() != a1.ID() || got[1].ID() != a2.ID() {
		t.Fatalf("articles = %v", got)
	}

	w, err := writers.Update(ctx, w.ID(), content.Entry{"articles": []any{a3.ID()}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := entryList(t, w["articles"]); len(got) != 1 || got[0].ID() != a3.ID() {
		t.Errorf("articles = %v", got)
	}

	detached, err := articles.FindOne(ctx, a1.ID(), []string{"author"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if detached["author"] != nil {
		t.Errorf("a1.author = %#v, want nil", detached["author"])
	}
	attached, err := articles.FindOne(ctx, a3.ID(), []string{"author"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got := entryOf(t, attached["author"]); got.ID() != w.ID() {
		t.Errorf("a3.author = %v", got)
	}
}

func TestOneToOneSync(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := testContext(t)
	writers := repo(t, s, "writer")
	profiles := repo(t, s, "profile")

	p := mustCreate(t, profiles, content.Entry{"bio": "hello"})
	ann := mustCreate(t, writers, content.Entry{"name": "Ann", "profile": p.ID()})
	if got := entryOf(t, ann["profile"]); got.ID() != p.ID() {
		t.Fatalf("ann.profile = %v", got)
	}

	p, err := profiles.FindOne(ctx, p.ID(), nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got := entryOf(t, p["writer"]); got.ID() != ann.ID() {
		t.Errorf("profile.writer = %v, want Ann", got)
	}

	// moving the profile detaches it from its previous writer
	bob := mustCreate(t, writers, content.Entry{"name": "Bob", "profile": p.ID()})
	ann, err = writers.FindOne(ctx, ann.ID(), nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if ann["profile"] != nil {
		t.Errorf("ann.profile = %#v, want nil", ann["profile"])
	}
	p, err = profiles.FindOne(ctx, p.ID(), nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got := entryOf(t, p["writer"]); got.ID() != bob.ID() {
		t.Errorf("profile.writer = %v, want Bob", got)
	}

	if _, err := writers.Update(ctx, bob.ID(), content.Entry{"profile": []any{p.ID()}}); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want 400 for a list on a single relation", err)
	}
}

func TestManyToManySync(t *testing.T) {
	t.Parallel()

	s, db := newStore(t)
	ctx := testContext(t)
	articles := repo(t, s, "article")
	tags := repo(t, s, "tag")

	goTag := mustCreate(t, tags, content.Entry{"label": "go"})
	sqlTag := mustCreate(t, tags, content.Entry{"label": "sql"})
	a := mustCreate(t, articles, content.Entry{"title": "t", "tags": []any{goTag.ID(), goTag.ID(), sqlTag.ID()}})
	if n := countRows(t, db, "articles_tags__tags_articles"); n != 2 {
		t.Fatalf("join rows = %d, want 2 after dedupe", n)
	}

	if _, err := articles.Update(ctx, a.ID(), content.Entry{"tags": []any{sqlTag.ID()}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	tag, err := tags.FindOne(ctx, goTag.ID(), nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got := entryList(t, tag["articles"]); len(got) != 0 {
		t.Errorf("go.articles = %v, want none", got)
	}
	tag, err = tags.FindOne(ctx, sqlTag.ID(), nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got := entryList(t, tag["articles"]); len(got) != 1 || got[0].ID() != a.ID() {
		t.Errorf("sql.articles = %v", got)
	}
}

func TestMediaLinks(t *testing.T) {
	t.Parallel()

	s, db := newStore(t)
	ctx := testContext(t)
	files := repo(t, s, "file")
	articles := repo(t, s, "article")

	if _, err := files.Create(ctx, content.Entry{"name": "a.png"}); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("err = %v, want 400 for a file without hash", err)
	}

	newFile := func(name string) content.Entry {
		return mustCreate(t, files, content.Entry{
			"name":     name,
			"hash":     name + "-hash",
			"ext":      ".png",
			"mime":     "image/png",
			"size":     1.5,
			"url":      "/uploads/" + name,
			"provider": "local",
		})
	}
	cover := newFile("cover.png")
	g1 := newFile("g1.png")
	g2 := newFile("g2.png")

	a := mustCreate(t, articles, content.Entry{
		"title":   "media",
		"cover":   cover.ID(),
		"gallery": []any{g2.ID(), map[string]any{"id": g1.ID()}},
	})
	if got := entryOf(t, a["cover"]); got["url"] != "/uploads/cover.png" {
		t.Errorf("cover = %v", got)
	}
	gallery := entryList(t, a["gallery"])
	if len(gallery) != 2 || gallery[0].ID() != g2.ID() || gallery[1].ID() != g1.ID() {
		t.Errorf("gallery = %v, want g2 then g1", gallery)
	}
	if n := countRows(t, db, "upload_file_morph"); n != 3 {
		t.Errorf("morph rows = %d, want 3", n)
	}

	updated, err := articles.Update(ctx, a.ID(), content.Entry{"cover": nil})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["cover"] != nil {
		t.Errorf("cover = %#v, want nil", updated["cover"])
	}

	if _, err := articles.Delete(ctx, a.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := countRows(t, db, "upload_file_morph"); n != 0 {
		t.Errorf("morph rows = %d after Delete, want 0", n)
	}
	if n := countRows(t, db, "upload_file"); n != 3 {
		t.Errorf("files = %d, want 3: deleting an entry keeps its files", n)
	}
}
