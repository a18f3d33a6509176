package restquery

import (
	"fmt"
	"net/http"

	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/scope"
)

// Field is a filterable column. Column is the SQL expression placed in
// the clause, already quoted. Coerce converts raw values for binding; nil
// binds them unchanged.
type Field struct {
	Column string
	Coerce func(v any) (any, error)
}

// Resolver maps a public field name to its Field.
type Resolver func(name string) (Field, bool)

// WhereScopes returns the WHERE scopes of f.
func WhereScopes(f Filters, d orm.Dialect, resolve Resolver) ([]scope.Scope, error) {
	scopes := make([]scope.Scope, 0, len(f.Where))
	for _, w := range f.Where {
		field, ok := resolve(w.Field)
		if !ok {
			return nil, unknownField(w.Field)
		}
		s, err := whereScope(w, field, d)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

// OrderScopes returns the ORDER BY, LIMIT and OFFSET scopes of f.
func OrderScopes(f Filters, resolve Resolver) ([]scope.Scope, error) {
	var scopes []scope.Scope
	for _, s := range f.Sort {
		field, ok := resolve(s.Field)
		if !ok {
			return nil, unknownField(s.Field)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		scopes = append(scopes, scope.OrderBy(field.Column+" "+dir))
	}
	if f.Limit != Unlimited {
		scopes = append(scopes, scope.Limit(f.Limit))
	}
	if f.Start > 0 {
		if f.Limit == Unlimited {
			// OFFSET requires a LIMIT in MySQL and SQLite.
			scopes = append(scopes, scope.Limit(maxLimit))
		}
		scopes = append(scopes, scope.Offset(f.Start))
	}
	return scopes, nil
}

// Scopes returns WhereScopes followed by OrderScopes.
func Scopes(f Filters, d orm.Dialect, resolve Resolver) ([]scope.Scope, error) {
	where, err := WhereScopes(f, d, resolve)
	if err != nil {
		return nil, err
	}
	order, err := OrderScopes(f, resolve)
	if err != nil {
		return nil, err
	}
	return append(where, order...), nil
}

const maxLimit = 1<<31 - 1

func unknownField(name string) error {
	return apperr.BadRequest("Your filters contain a field '%s' that doesn't appear on your model definition nor its relations", name)
}

func whereScope(w Where, field Field, d orm.Dialect) (scope.Scope, error) {
	col := field.Column

	switch w.Operator {
	case OpNull:
		isNull, err := cast.ToBoolE(first(w.Value))
		if err != nil {
			return scope.Scope{}, apperr.BadRequest("%s_null expects a boolean", w.Field)
		}
		if isNull {
			return scope.IsNull(col), nil
		}
		return scope.NotNull(col), nil
	case OpIn, OpNin:
		values, err := coerceAll(w, field)
		if err != nil {
			return scope.Scope{}, err
		}
		if w.Operator == OpIn {
			return scope.In(col, values), nil
		}
		return scope.NotIn(col, values), nil
	case OpContains, OpNcontains, OpContainss, OpNcontainss:
		pattern := "%" + cast.ToString(first(w.Value)) + "%"
		return containsScope(col, pattern, w.Operator, d), nil
	}

	v, err := coerce(w, field, first(w.Value))
	if err != nil {
		return scope.Scope{}, err
	}
	if v == nil {
		switch w.Operator {
		case OpEq:
			return scope.IsNull(col), nil
		case OpNe:
			return scope.NotNull(col), nil
		}
	}

	var cmp string
	switch w.Operator {
	case OpEq:
		cmp = "="
	case OpNe:
		cmp = "<>"
	case OpLt:
		cmp = "<"
	case OpLte:
		cmp = "<="
	case OpGt:
		cmp = ">"
	case OpGte:
		cmp = ">="
	default:
		return scope.Scope{}, apperr.BadRequest("unsupported operator %s", w.Operator)
	}
	return scope.Where(fmt.Sprintf("%s %s ?", col, cmp), v), nil
}

// containsScope builds LIKE clauses. The plain variants ignore case on
// every engine; the "s" variants respect it.
func containsScope(col, pattern string, op Operator, d orm.Dialect) scope.Scope {
	negate := op == OpNcontains || op == OpNcontainss
	sensitive := op == OpContainss || op == OpNcontainss

	var clause string
	switch {
	case sensitive && d.Name() == orm.NameMySQL:
		clause = col + " LIKE BINARY ?"
	case sensitive && d.Name() == orm.NameSQLite:
		// LIKE ignores ASCII case in SQLite; GLOB does not.
		clause = col + " GLOB ?"
		pattern = "*" + pattern[1:len(pattern)-1] + "*"
	case sensitive:
		clause = col + " LIKE ?"
	case d.Name() == orm.NamePostgreSQL:
		clause = col + " ILIKE ?"
	default:
		clause = "LOWER(" + col + ") LIKE LOWER(?)"
	}
	if negate {
		clause = "NOT (" + clause + ")"
	}
	return scope.Where(clause, pattern)
}

func coerce(w Where, field Field, v any) (any, error) {
	if field.Coerce == nil || v == nil {
		return v, nil
	}
	out, err := field.Coerce(v)
	if err != nil {
		return nil, apperr.Wrap(err, http.StatusBadRequest, fmt.Sprintf("invalid value for %s", w.Field))
	}
	return out, nil
}

func coerceAll(w Where, field Field) ([]any, error) {
	raw := list(w.Value)
	out := make([]any, 0, len(raw))
	for _, v := range raw {
		c, err := coerce(w, field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
