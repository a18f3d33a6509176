package content

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
	"github.com/mickamy/contentorm/scope"
)

var searchDisallowed = regexp.MustCompile(`[^a-zA-Z0-9.\-\s]+`)

// SanitizeSearch strips every character of q that is not a letter, a
// digit, a dot, a dash or whitespace.
func SanitizeSearch(q string) string {
	return searchDisallowed.ReplaceAllString(q, "")
}

// searchScope returns one WHERE scope matching entries of m against the
// raw search text q. Numeric text also matches numeric attributes by
// equality, "true"/"false" matches boolean attributes and text columns
// use the engine's full-text facility. ok is false when q is empty after
// sanitising, in which case no filter applies.
func searchScope(m *schema.Model, d orm.Dialect, q string) (s scope.Scope, ok bool) {
	q = strings.TrimSpace(SanitizeSearch(q))
	if q == "" {
		return scope.Scope{}, false
	}
	qi := d.QuoteIdent

	var clauses []scope.Scope
	if n, err := strconv.ParseInt(q, 10, 64); err == nil {
		for _, a := range m.Attributes {
			if a.IsNumeric() && !a.Private {
				clauses = append(clauses, scope.Where(qi(a.Name)+" = ?", n))
			}
		}
	} else if f, err := strconv.ParseFloat(q, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		// a fractional number cannot equal an integer column
		for _, a := range m.Attributes {
			if (a.Type == schema.TypeFloat || a.Type == schema.TypeDecimal) && !a.Private {
				clauses = append(clauses, scope.Where(qi(a.Name)+" = ?", f))
			}
		}
	}
	if q == "true" || q == "false" {
		for _, a := range m.Attributes {
			if a.Type == schema.TypeBoolean && !a.Private {
				clauses = append(clauses, scope.Where(qi(a.Name)+" = ?", q == "true"))
			}
		}
	}
	if text, ok := textSearchScope(m.SearchColumns(), d, q); ok {
		clauses = append(clauses, text)
	}
	return scope.Or(clauses...), true
}

func textSearchScope(cols []string, d orm.Dialect, q string) (scope.Scope, bool) {
	if len(cols) == 0 {
		return scope.Scope{}, false
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}

	switch d.Name() {
	case orm.NameMySQL:
		return scope.Where("MATCH("+strings.Join(quoted, ",")+") AGAINST(? IN BOOLEAN MODE)", "*"+q+"*"), true
	case orm.NamePostgreSQL:
		terms := tsQuery(q)
		if terms == "" {
			return scope.Scope{}, false
		}
		vectors := make([]string, len(quoted))
		for i, c := range quoted {
			vectors[i] = "to_tsvector(" + c + ")"
		}
		return scope.Where(strings.Join(vectors, " || ")+" @@ to_tsquery(?)", terms), true
	default:
		likes := make([]scope.Scope, len(quoted))
		for i, c := range quoted {
			likes[i] = scope.Where(c+" LIKE ?", "%"+q+"%")
		}
		return scope.Or(likes...), true
	}
}

// tsQuery ANDs the words of q. Dots and dashes around a word are dropped
// and tokens without a letter or digit are skipped, since to_tsquery
// rejects bare punctuation.
func tsQuery(q string) string {
	var terms []string
	for _, f := range strings.Fields(q) {
		f = strings.Trim(f, ".-")
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			terms = append(terms, f)
		}
	}
	return strings.Join(terms, " & ")
}
