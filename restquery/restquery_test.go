package restquery_test

import (
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/restquery"
	"github.com/mickamy/contentorm/scope"
)

// recorder collects scope fragments the way a query builder would.
type recorder struct {
	wheres []string
	args   []any
	orders []string
	limit  *int
	offset *int
}

func (r *recorder) ApplyWhere(clause string, args []any) {
	r.wheres = append(r.wheres, clause)
	r.args = append(r.args, args...)
}
func (r *recorder) ApplyOrderBy(clause string) { r.orders = append(r.orders, clause) }
func (r *recorder) ApplyLimit(n int)           { r.limit = &n }
func (r *recorder) ApplyOffset(n int)          { r.offset = &n }
func (r *recorder) ApplySelect(string)         {}

func record(scopes []scope.Scope) *recorder {
	r := &recorder{}
	for _, s := range scopes {
		s.Apply(r)
	}
	return r
}

func toInt64(v any) (any, error) { return cast.ToInt64E(v) }

var fields = map[string]restquery.Field{
	"id":    {Column: `"id"`, Coerce: toInt64},
	"title": {Column: `"title"`},
	"views": {Column: `"views"`, Coerce: toInt64},
}

func resolve(name string) (restquery.Field, bool) {
	f, ok := fields[name]
	return f, ok
}

func TestConvert(t *testing.T) {
	t.Parallel()

	f, err := restquery.Convert(restquery.Params{
		"_sort":     "title:asc,views:DESC",
		"_start":    "20",
		"_limit":    "10",
		"_q":        "hello",
		"views_gte": "100",
		"title":     "x",
		"id_in":     []string{"1", "2"},
		"_unknown":  "ignored",
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if f.Start != 20 || f.Limit != 10 || f.Query != "hello" {
		t.Errorf("Start=%d Limit=%d Query=%q", f.Start, f.Limit, f.Query)
	}
	wantSort := []restquery.Sort{{Field: "title"}, {Field: "views", Desc: true}}
	if !reflect.DeepEqual(f.Sort, wantSort) {
		t.Errorf("Sort = %+v, want %+v", f.Sort, wantSort)
	}
	wantWhere := []restquery.Where{
		{Field: "id", Operator: restquery.OpIn, Value: []string{"1", "2"}},
		{Field: "title", Operator: restquery.OpEq, Value: "x"},
		{Field: "views", Operator: restquery.OpGte, Value: "100"},
	}
	if !reflect.DeepEqual(f.Where, wantWhere) {
		t.Errorf("Where = %+v, want %+v", f.Where, wantWhere)
	}
}

func TestConvertDefaults(t *testing.T) {
	t.Parallel()

	f, err := restquery.Convert(nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if f.Limit != restquery.DefaultLimit || f.Start != 0 || len(f.Where) != 0 {
		t.Errorf("Filters = %+v", f)
	}
}

func TestConvertOperators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key   string
		field string
		op    restquery.Operator
	}{
		{"views_ne", "views", restquery.OpNe},
		{"views_lt", "views", restquery.OpLt},
		{"views_lte", "views", restquery.OpLte},
		{"views_gt", "views", restquery.OpGt},
		{"id_nin", "id", restquery.OpNin},
		{"title_contains", "title", restquery.OpContains},
		{"title_ncontains", "title", restquery.OpNcontains},
		{"title_containss", "title", restquery.OpContainss},
		{"title_ncontainss", "title", restquery.OpNcontainss},
		{"title_null", "title", restquery.OpNull},
		{"status_in", "status", restquery.OpIn},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()

			f, err := restquery.Convert(restquery.Params{tt.key: "v"})
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if len(f.Where) != 1 || f.Where[0].Field != tt.field || f.Where[0].Operator != tt.op {
				t.Errorf("Where = %+v, want %s %s", f.Where, tt.field, tt.op)
			}
		})
	}
}

func TestConvertErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params restquery.Params
	}{
		{"bad limit", restquery.Params{"_limit": "ten"}},
		{"limit below -1", restquery.Params{"_limit": "-2"}},
		{"negative start", restquery.Params{"_start": "-1"}},
		{"bad sort order", restquery.Params{"_sort": "title:up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := restquery.Convert(tt.params)
			if !apperr.IsStatus(err, http.StatusBadRequest) {
				t.Errorf("err = %v, want 400", err)
			}
		})
	}
}

func TestFromValues(t *testing.T) {
	t.Parallel()

	values, _ := url.ParseQuery("title=a&id_in=1&id_in=2&tag_in[]=x&_limit=5")
	got := restquery.FromValues(values)
	want := restquery.Params{
		"title":  "a",
		"id_in":  []string{"1", "2"},
		"tag_in": []string{"x"},
		"_limit": "5",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromValues = %#v, want %#v", got, want)
	}
}

func TestScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  restquery.Params
		dialect orm.Dialect
		wheres  []string
		args    []any
	}{
		{"eq coerced", restquery.Params{"views": "3"}, orm.MySQL, []string{`"views" = ?`}, []any{int64(3)}},
		{"ne", restquery.Params{"title_ne": "a"}, orm.MySQL, []string{`"title" <> ?`}, []any{"a"}},
		{"range", restquery.Params{"views_gt": "1", "views_lte": "9"}, orm.MySQL, []string{`"views" > ?`, `"views" <= ?`}, []any{int64(1), int64(9)}},
		{"in", restquery.Params{"id_in": []string{"1", "2"}}, orm.MySQL, []string{`"id" IN (?, ?)`}, []any{int64(1), int64(2)}},
		{"nin", restquery.Params{"id_nin": "4"}, orm.MySQL, []string{`"id" NOT IN (?)`}, []any{int64(4)}},
		{"null", restquery.Params{"title_null": "true"}, orm.MySQL, []string{`"title" IS NULL`}, nil},
		{"not null", restquery.Params{"title_null": "false"}, orm.MySQL, []string{`"title" IS NOT NULL`}, nil},
		{"contains postgres", restquery.Params{"title_contains": "Go"}, orm.PostgreSQL, []string{`"title" ILIKE ?`}, []any{"%Go%"}},
		{"contains sqlite", restquery.Params{"title_contains": "Go"}, orm.SQLite, []string{`LOWER("title") LIKE LOWER(?)`}, []any{"%Go%"}},
		{"ncontains mysql", restquery.Params{"title_ncontains": "Go"}, orm.MySQL, []string{`NOT (LOWER("title") LIKE LOWER(?))`}, []any{"%Go%"}},
		{"containss mysql", restquery.Params{"title_containss": "Go"}, orm.MySQL, []string{`"title" LIKE BINARY ?`}, []any{"%Go%"}},
		{"containss sqlite", restquery.Params{"title_containss": "Go"}, orm.SQLite, []string{`"title" GLOB ?`}, []any{"*Go*"}},
		{"ncontainss postgres", restquery.Params{"title_ncontainss": "Go"}, orm.PostgreSQL, []string{`NOT ("title" LIKE ?)`}, []any{"%Go%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := restquery.Convert(tt.params)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			scopes, err := restquery.WhereScopes(f, tt.dialect, resolve)
			if err != nil {
				t.Fatalf("WhereScopes: %v", err)
			}
			r := record(scopes)
			if !reflect.DeepEqual(r.wheres, tt.wheres) {
				t.Errorf("wheres = %v, want %v", r.wheres, tt.wheres)
			}
			if !reflect.DeepEqual(r.args, tt.args) {
				t.Errorf("args = %#v, want %#v", r.args, tt.args)
			}
		})
	}
}

func TestOrderScopes(t *testing.T) {
	t.Parallel()

	f, _ := restquery.Convert(restquery.Params{"_sort": "views:desc,title", "_start": "5", "_limit": "-1"})
	scopes, err := restquery.OrderScopes(f, resolve)
	if err != nil {
		t.Fatalf("OrderScopes: %v", err)
	}
	r := record(scopes)

	if want := []string{`"views" DESC`, `"title" ASC`}; !reflect.DeepEqual(r.orders, want) {
		t.Errorf("orders = %v, want %v", r.orders, want)
	}
	if r.limit == nil || *r.limit <= 0 {
		t.Errorf("limit = %v, want a large limit so OFFSET applies", r.limit)
	}
	if r.offset == nil || *r.offset != 5 {
		t.Errorf("offset = %v, want 5", r.offset)
	}

	f, _ = restquery.Convert(restquery.Params{"_limit": "-1"})
	scopes, _ = restquery.OrderScopes(f, resolve)
	if r := record(scopes); r.limit != nil || r.offset != nil {
		t.Errorf("unlimited query got limit=%v offset=%v", r.limit, r.offset)
	}
}

func TestScopesRejectUnknownField(t *testing.T) {
	t.Parallel()

	for _, params := range []restquery.Params{{"secret": "x"}, {"_sort": "secret:asc"}} {
		f, _ := restquery.Convert(params)
		_, err := restquery.Scopes(f, orm.MySQL, resolve)
		if !apperr.IsStatus(err, http.StatusBadRequest) || !strings.Contains(err.Error(), "'secret'") {
			t.Errorf("params %v: err = %v", params, err)
		}
	}
}

func TestScopesRejectBadValue(t *testing.T) {
	t.Parallel()

	f, _ := restquery.Convert(restquery.Params{"views": "lots"})
	if _, err := restquery.WhereScopes(f, orm.MySQL, resolve); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want 400", err)
	}
}
