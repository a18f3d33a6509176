package content

import (
	"database/sql"

	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
)

// groupLink is a row of a model's group join table.
type groupLink struct {
	ID        int64
	EntityID  int64
	Field     string
	Order     int64
	SliceType string
	SliceID   int64
}

// groupLinks returns a new Query for the group join table of m.
func groupLinks(db orm.Querier, m *schema.Model) *orm.Query[groupLink] {
	fk := m.GroupForeignKey()
	return orm.NewQuery[groupLink](
		db, m.GroupJoinTable(), []string{"id", fk, "field", "order", "slice_type", "slice_id"}, "id",
		scanGroupLink(fk), groupLinkColumnValuePairs(fk), setGroupLinkPK,
	)
}

func scanGroupLink(fk string) orm.ScanFunc[groupLink] {
	return func(rows *sql.Rows) (groupLink, error) {
		cols, _ := rows.Columns()
		var v groupLink
		dest := make([]any, len(cols))
		for i, col := range cols {
			switch col {
			case "id":
				dest[i] = &v.ID
			case fk:
				dest[i] = &v.EntityID
			case "field":
				dest[i] = &v.Field
			case "order":
				dest[i] = &v.Order
			case "slice_type":
				dest[i] = &v.SliceType
			case "slice_id":
				dest[i] = &v.SliceID
			default:
				dest[i] = new(any)
			}
		}
		err := rows.Scan(dest...)
		return v, err //nolint:wrapcheck // pass through
	}
}

func groupLinkColumnValuePairs(fk string) orm.ColumnValueFunc[groupLink] {
	return func(v *groupLink, includesPK bool) ([]string, []any) {
		if includesPK {
			return []string{"id", fk, "field", "order", "slice_type", "slice_id"},
				[]any{v.ID, v.EntityID, v.Field, v.Order, v.SliceType, v.SliceID}
		}
		return []string{fk, "field", "order", "slice_type", "slice_id"},
			[]any{v.EntityID, v.Field, v.Order, v.SliceType, v.SliceID}
	}
}

func setGroupLinkPK(v *groupLink, id int64) {
	v.ID = id
}

// joinRow is a row of a many-way or many-to-many join table.
type joinRow struct {
	ID     int64
	Source int64
	Target int64
}

// joinRows returns a new Query for the join table of as.
func joinRows(db orm.Querier, as *schema.Association) *orm.Query[joinRow] {
	src, dst := as.JoinColumn, as.InverseJoinColumn
	return orm.NewQuery[joinRow](
		db, as.JoinTable, []string{"id", src, dst}, "id",
		scanJoinRow(src, dst), joinRowColumnValuePairs(src, dst), setJoinRowPK,
	)
}

func scanJoinRow(src, dst string) orm.ScanFunc[joinRow] {
	return func(rows *sql.Rows) (joinRow, error) {
		cols, _ := rows.Columns()
		var v joinRow
		dest := make([]any, len(cols))
		for i, col := range cols {
			switch col {
			case "id":
				dest[i] = &v.ID
			case src:
				dest[i] = &v.Source
			case dst:
				dest[i] = &v.Target
			default:
				dest[i] = new(any)
			}
		}
		err := rows.Scan(dest...)
		return v, err //nolint:wrapcheck // pass through
	}
}

func joinRowColumnValuePairs(src, dst string) orm.ColumnValueFunc[joinRow] {
	return func(v *joinRow, includesPK bool) ([]string, []any) {
		if includesPK {
			return []string{"id", src, dst}, []any{v.ID, v.Source, v.Target}
		}
		return []string{src, dst}, []any{v.Source, v.Target}
	}
}

func setJoinRowPK(v *joinRow, id int64) {
	v.ID = id
}

// morphLink is a row of the media link table.
type morphLink struct {
	ID          int64
	FileID      int64
	RelatedID   int64
	RelatedType string
	Field       string
	Order       int64
}

var morphLinksColumns = []string{
	"id", schema.MorphFileColumn, schema.MorphRelatedIDColumn,
	schema.MorphRelatedTypeColumn, schema.MorphFieldColumn, schema.MorphOrderColumn,
}

// morphLinks returns a new Query for the media link table.
func morphLinks(db orm.Querier) *orm.Query[morphLink] {
	return orm.NewQuery[morphLink](
		db, schema.MorphTable, morphLinksColumns, "id",
		scanMorphLink, morphLinkColumnValuePairs, setMorphLinkPK,
	)
}

func scanMorphLink(rows *sql.Rows) (morphLink, error) {
	cols, _ := rows.Columns()
	var v morphLink
	dest := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case "id":
			dest[i] = &v.ID
		case schema.MorphFileColumn:
			dest[i] = &v.FileID
		case schema.MorphRelatedIDColumn:
			dest[i] = &v.RelatedID
		case schema.MorphRelatedTypeColumn:
			dest[i] = &v.RelatedType
		case schema.MorphFieldColumn:
			dest[i] = &v.Field
		case schema.MorphOrderColumn:
			dest[i] = &v.Order
		default:
			dest[i] = new(any)
		}
	}
	err := rows.Scan(dest...)
	return v, err //nolint:wrapcheck // pass through
}

func morphLinkColumnValuePairs(v *morphLink, includesPK bool) ([]string, []any) {
	if includesPK {
		return morphLinksColumns, []any{v.ID, v.FileID, v.RelatedID, v.RelatedType, v.Field, v.Order}
	}
	return morphLinksColumns[1:], []any{v.FileID, v.RelatedID, v.RelatedType, v.Field, v.Order}
}

func setMorphLinkPK(v *morphLink, id int64) {
	v.ID = id
}
