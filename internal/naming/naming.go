package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName derives a table name from a model name:
// "Article" → "articles", "BlogPost" → "blog_posts", "blog-post" → "blog_posts".
func TableName(model string) string {
	return inflection.Plural(CamelToSnake(strings.ReplaceAll(model, "-", "_")))
}

// ForeignKey returns the column referencing rows of table:
// "articles" → "article_id".
func ForeignKey(table string) string {
	return inflection.Singular(table) + "_id"
}

// IsIdent reports whether s is a plain SQL identifier made of ASCII
// letters, digits and underscores, not starting with a digit.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
