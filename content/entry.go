// Package content maps REST queries onto SQL for the models of a schema
// registry and persists entries together with their groups and relations.
package content

import (
	"database/sql"

	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
)

// Entry is one row of a content type or group, keyed by attribute name.
// Populated associations and groups are nested under their alias.
type Entry map[string]any

// ID returns the primary key of e, or 0 when it has none.
func (e Entry) ID() int64 {
	id, _ := cast.ToInt64E(e[schema.PrimaryKey])
	return id
}

// entries returns a new Query for the table of m.
func entries(db orm.Querier, m *schema.Model) *orm.Query[Entry] {
	return orm.NewQuery[Entry](
		db, m.CollectionName, m.Columns(), schema.PrimaryKey,
		entryScanner(m), entryColumnValuePairs(m), setEntryPK,
	)
}

func entryScanner(m *schema.Model) orm.ScanFunc[Entry] {
	return func(rows *sql.Rows) (Entry, error) {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		dest := make([]any, len(cols))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}

		e := make(Entry, len(cols))
		for i, col := range cols {
			e[col] = decodeColumn(m, col, *(dest[i].(*any)))
		}
		return e, nil
	}
}

// decodeColumn normalises driver values: ids become int64, attribute
// values go through Attribute.Decode.
func decodeColumn(m *schema.Model, col string, v any) any {
	if v == nil {
		return nil
	}
	switch col {
	case schema.PrimaryKey:
		return cast.ToInt64(v)
	case schema.CreatedAt, schema.UpdatedAt:
		return timestampAttr.Decode(v)
	}
	if a := m.Attribute(col); a != nil && a.IsScalar() {
		return a.Decode(v)
	}
	if as := m.Association(col); as != nil && as.HasColumn() {
		return cast.ToInt64(v)
	}
	return v
}

var timestampAttr = &schema.Attribute{Name: "timestamp", Type: schema.TypeDateTime}

// entryColumnValuePairs returns the columns present in the entry, so
// Update only writes the attributes it was given.
func entryColumnValuePairs(m *schema.Model) orm.ColumnValueFunc[Entry] {
	return func(e *Entry, includesPK bool) ([]string, []any) {
		var cols []string
		var vals []any
		for _, col := range m.Columns() {
			if col == schema.PrimaryKey && !includesPK {
				continue
			}
			v, ok := (*e)[col]
			if !ok {
				continue
			}
			cols = append(cols, col)
			vals = append(vals, v)
		}
		return cols, vals
	}
}

func setEntryPK(e *Entry, id int64) {
	(*e)[schema.PrimaryKey] = id
}
