// Package restquery converts REST query parameters into filters and turns
// filters into scopes.
//
//	_sort=title:asc,views:desc  _start=20  _limit=10  _q=hello
//	views_gte=100  status=published  id_in=1&id_in=2  author_null=true
package restquery

import (
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/apperr"
)

// DefaultLimit is the number of entries returned when _limit is absent.
const DefaultLimit = 100

// Unlimited disables the LIMIT clause when passed as _limit.
const Unlimited = -1

// Reserved parameter names.
const (
	ParamSort  = "_sort"
	ParamStart = "_start"
	ParamLimit = "_limit"
	ParamQuery = "_q"
)

// Operator is a field filter comparison.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpContains   Operator = "contains"
	OpNcontains  Operator = "ncontains"
	OpContainss  Operator = "containss"
	OpNcontainss Operator = "ncontainss"
	OpNull       Operator = "null"
)

// suffix operators, longest first so "_ncontainss" wins over "_containss".
var suffixes = func() []Operator {
	ops := []Operator{OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNin, OpContains, OpNcontains, OpContainss, OpNcontainss, OpNull}
	sort.Slice(ops, func(i, j int) bool { return len(ops[i]) > len(ops[j]) })
	return ops
}()

// Params are raw query parameters. Values are strings, []string or any
// value decoded from JSON.
type Params map[string]any

// Where is one field condition.
type Where struct {
	Field    string
	Operator Operator
	Value    any
}

// Sort is one ORDER BY term.
type Sort struct {
	Field string
	Desc  bool
}

// Filters is the converted form of Params.
type Filters struct {
	Where []Where
	Sort  []Sort
	Start int
	Limit int
	Query string
}

// FromValues converts URL query values. Repeated keys and keys ending in
// "[]" yield []string values.
func FromValues(values url.Values) Params {
	params := make(Params, len(values))
	for key, vs := range values {
		name, list := strings.CutSuffix(key, "[]")
		switch {
		case list || len(vs) > 1:
			params[name] = append([]string(nil), vs...)
		case len(vs) == 1:
			params[name] = vs[0]
		}
	}
	return params
}

// Convert turns params into Filters. Where conditions are sorted by field
// so the generated SQL is stable.
func Convert(params Params) (Filters, error) {
	f := Filters{Limit: DefaultLimit}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		switch key {
		case ParamSort:
			s, err := convertSort(value)
			if err != nil {
				return Filters{}, err
			}
			f.Sort = s
		case ParamStart:
			n, err := cast.ToIntE(first(value))
			if err != nil || n < 0 {
				return Filters{}, apperr.BadRequest("_start must be a non-negative integer")
			}
			f.Start = n
		case ParamLimit:
			n, err := cast.ToIntE(first(value))
			if err != nil || n < Unlimited {
				return Filters{}, apperr.BadRequest("_limit must be an integer greater than or equal to -1")
			}
			f.Limit = n
		case ParamQuery:
			f.Query = cast.ToString(first(value))
		default:
			if strings.HasPrefix(key, "_") {
				continue
			}
			f.Where = append(f.Where, convertWhere(key, value))
		}
	}
	return f, nil
}

func convertWhere(key string, value any) Where {
	for _, op := range suffixes {
		if field, ok := strings.CutSuffix(key, "_"+string(op)); ok && field != "" {
			return Where{Field: field, Operator: op, Value: value}
		}
	}
	return Where{Field: key, Operator: OpEq, Value: value}
}

func convertSort(value any) ([]Sort, error) {
	var terms []string
	for _, v := range list(value) {
		terms = append(terms, strings.Split(cast.ToString(v), ",")...)
	}

	var out []Sort
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		field, order, _ := strings.Cut(term, ":")
		switch strings.ToLower(order) {
		case "", "asc":
			out = append(out, Sort{Field: field})
		case "desc":
			out = append(out, Sort{Field: field, Desc: true})
		default:
			return nil, apperr.BadRequest("_sort order of %s must be asc or desc", field)
		}
	}
	return out, nil
}

// list normalises a parameter value into a slice.
func list(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func first(value any) any {
	if l := list(value); len(l) > 0 {
		return l[0]
	}
	return nil
}
