package naming_test

import (
	"testing"

	"github.com/mickamy/contentorm/internal/naming"
)

func TestCamelToSnake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"ID", "id"},
		{"Name", "name"},
		{"CreatedAt", "created_at"},
		{"UserID", "user_id"},
		{"HTTPServer", "http_server"},
		{"userProfile", "user_profile"},
		{"A", "a"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := naming.CamelToSnake(tt.input)
			if got != tt.want {
				t.Errorf("CamelToSnake(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"article", "articles"},
		{"Category", "categories"},
		{"BlogPost", "blog_posts"},
		{"blog-post", "blog_posts"},
		{"person", "people"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := naming.TableName(tt.input); got != tt.want {
				t.Errorf("TableName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestForeignKey(t *testing.T) {
	t.Parallel()

	if got := naming.ForeignKey("articles"); got != "article_id" {
		t.Errorf("ForeignKey = %q, want %q", got, "article_id")
	}
	if got := naming.ForeignKey("categories"); got != "category_id" {
		t.Errorf("ForeignKey = %q, want %q", got, "category_id")
	}
}

func TestIsIdent(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"title":        true,
		"created_at":   true,
		"_private":     true,
		"9lives":       false,
		"":             false,
		"name; DROP":   false,
		"title\"":     false,
		"seo-settings": false,
	} {
		if got := naming.IsIdent(in); got != want {
			t.Errorf("IsIdent(%q) = %v, want %v", in, got, want)
		}
	}
}
