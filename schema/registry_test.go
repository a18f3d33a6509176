package schema_test

import (
	"errors"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/mickamy/contentorm/schema"
)

func testdataPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

func loadRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	r := schema.NewRegistry()
	if err := r.LoadDir(testdataPath()); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := r.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return r
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	r := loadRegistry(t)

	var uids []string
	for _, m := range r.Models() {
		uids = append(uids, m.UID)
	}
	if want := []string{"article", "category", "file", "tag", "writer"}; !slices.Equal(uids, want) {
		t.Errorf("Models = %v, want %v", uids, want)
	}

	category, err := r.Model("category")
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if category.CollectionName != "categories" {
		t.Errorf("CollectionName = %q, want %q", category.CollectionName, "categories")
	}

	seo, err := r.Group("seo")
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if seo.Kind != schema.KindGroup || seo.CollectionName != "groups_seos" {
		t.Errorf("seo = %s %q", seo.Kind, seo.CollectionName)
	}

	if _, err := r.Model("missing"); !errors.Is(err, schema.ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}
}

func TestAttributeOrderIsKept(t *testing.T) {
	t.Parallel()

	article, _ := loadRegistry(t).Model("article")

	var names []string
	for _, a := range article.Attributes {
		names = append(names, a.Name)
	}
	want := []string{
		"title", "body", "views", "published", "status", "secret", "seo", "blocks",
		"author", "tags", "category", "related", "cover", "gallery",
	}
	if !slices.Equal(names, want) {
		t.Errorf("attributes = %v, want %v", names, want)
	}
}

func TestAssociations(t *testing.T) {
	t.Parallel()

	r := loadRegistry(t)
	article, _ := r.Model("article")
	writer, _ := r.Model("writer")
	tag, _ := r.Model("tag")

	tests := []struct {
		model  *schema.Model
		alias  string
		nature schema.Nature
		target string
		single bool
	}{
		{article, "author", schema.ManyToOne, "writer", true},
		{article, "tags", schema.ManyToMany, "tag", false},
		{article, "category", schema.OneWay, "category", true},
		{article, "related", schema.ManyWay, "article", false},
		{article, "cover", schema.OneToManyMorph, schema.FileModelUID, true},
		{article, "gallery", schema.ManyToManyMorph, schema.FileModelUID, false},
		{writer, "articles", schema.OneToMany, "article", false},
		{tag, "articles", schema.ManyToMany, "article", false},
	}
	for _, tt := range tests {
		t.Run(tt.model.UID+"."+tt.alias, func(t *testing.T) {
			t.Parallel()

			as := tt.model.Association(tt.alias)
			if as == nil {
				t.Fatalf("association %q not found", tt.alias)
			}
			if as.Nature != tt.nature {
				t.Errorf("Nature = %s, want %s", as.Nature, tt.nature)
			}
			if as.Target != tt.target {
				t.Errorf("Target = %s, want %s", as.Target, tt.target)
			}
			if as.Single() != tt.single {
				t.Errorf("Single = %v, want %v", as.Single(), tt.single)
			}
			if !as.AutoPopulate {
				t.Error("AutoPopulate = false, want true")
			}
		})
	}
}

func TestJoinTables(t *testing.T) {
	t.Parallel()

	r := loadRegistry(t)
	article, _ := r.Model("article")
	tag, _ := r.Model("tag")

	fromArticle := article.Association("tags")
	fromTag := tag.Association("articles")
	if fromArticle.JoinTable != "articles_tags__tags_articles" || fromArticle.JoinTable != fromTag.JoinTable {
		t.Errorf("JoinTable = %q / %q", fromArticle.JoinTable, fromTag.JoinTable)
	}
	if fromArticle.JoinColumn != "article_id" || fromArticle.InverseJoinColumn != "tag_id" {
		t.Errorf("article side columns = %q, %q", fromArticle.JoinColumn, fromArticle.InverseJoinColumn)
	}
	if fromTag.JoinColumn != "tag_id" || fromTag.InverseJoinColumn != "article_id" {
		t.Errorf("tag side columns = %q, %q", fromTag.JoinColumn, fromTag.InverseJoinColumn)
	}

	related := article.Association("related")
	if related.JoinTable != "articles__related" || related.JoinColumn != "article_id" || related.InverseJoinColumn != "related_article_id" {
		t.Errorf("related = %+v", related)
	}

	if article.GroupJoinTable() != "articles_groups" || article.GroupForeignKey() != "article_id" {
		t.Errorf("group join = %q.%q", article.GroupJoinTable(), article.GroupForeignKey())
	}
}

func TestColumns(t *testing.T) {
	t.Parallel()

	article, _ := loadRegistry(t).Model("article")

	want := []string{
		"id", "title", "body", "views", "published", "status", "secret",
		"author", "category", "created_at", "updated_at",
	}
	if got := article.Columns(); !slices.Equal(got, want) {
		t.Errorf("Columns = %v, want %v", got, want)
	}
	if got := article.SearchColumns(); !slices.Equal(got, []string{"title", "body"}) {
		t.Errorf("SearchColumns = %v", got)
	}
}

func TestGroupDefaults(t *testing.T) {
	t.Parallel()

	article, _ := loadRegistry(t).Model("article")

	seo := article.Attribute("seo")
	if seo.IsRequired() || seo.IsRepeatable() {
		t.Errorf("seo required=%v repeatable=%v, want false false", seo.IsRequired(), seo.IsRepeatable())
	}
	blocks := article.Attribute("blocks")
	if !blocks.IsRequired() || !blocks.IsRepeatable() {
		t.Errorf("blocks required=%v repeatable=%v, want true true", blocks.IsRequired(), blocks.IsRepeatable())
	}
	if blocks.Min != 1 || blocks.Max != 3 {
		t.Errorf("blocks min=%d max=%d", blocks.Min, blocks.Max)
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		models map[schema.Kind]string
		want   string
	}{
		{
			name:   "unknown target",
			models: map[schema.Kind]string{schema.KindContentType: "name: post\nattributes:\n  owner:\n    model: ghost\n"},
			want:   "unknown model",
		},
		{
			name:   "unknown group",
			models: map[schema.Kind]string{schema.KindContentType: "name: post\nattributes:\n  meta:\n    type: group\n    group: ghost\n"},
			want:   "unknown model",
		},
		{
			name: "nested group",
			models: map[schema.Kind]string{
				schema.KindGroup:       "name: inner\nattributes:\n  again:\n    type: group\n    group: inner\n",
				schema.KindContentType: "name: post\nattributes:\n  title:\n    type: string\n",
			},
			want: "groups cannot be nested",
		},
		{
			name:   "via not pointing back",
			models: map[schema.Kind]string{schema.KindContentType: "name: post\nattributes:\n  parent:\n    model: post\n    via: title\n  title:\n    type: string\n"},
			want:   "does not point back",
		},
		{
			name:   "reserved name",
			models: map[schema.Kind]string{schema.KindContentType: "name: post\nattributes:\n  created_at:\n    type: datetime\n"},
			want:   "invalid attribute name",
		},
		{
			name:   "enumeration without values",
			models: map[schema.Kind]string{schema.KindContentType: "name: post\nattributes:\n  state:\n    type: enumeration\n"},
			want:   "enumeration without values",
		},
		{
			name:   "unknown type",
			models: map[schema.Kind]string{schema.KindContentType: "name: post\nattributes:\n  state:\n    type: blob\n"},
			want:   "unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := schema.NewRegistry()
			for kind, src := range tt.models {
				m, err := schema.ParseModel([]byte(src), kind)
				if err != nil {
					t.Fatalf("ParseModel: %v", err)
				}
				if err := r.Register(m); err != nil {
					t.Fatalf("Register: %v", err)
				}
			}
			err := r.Resolve()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Resolve err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRegisterTwice(t *testing.T) {
	t.Parallel()

	r := schema.NewRegistry()
	if err := r.Register(&schema.Model{UID: "post"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&schema.Model{UID: "post"}); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if err := r.Register(&schema.Model{UID: "bad name"}); err == nil {
		t.Error("expected error on invalid name")
	}
}
