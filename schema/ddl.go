package schema

import (
	"fmt"
	"strings"

	"github.com/mickamy/contentorm/orm"
)

// Statements returns the CREATE TABLE IF NOT EXISTS statements for m and
// the link tables it owns: the group join table, the join tables of its
// many-way and many-to-many associations and, for the file model, the
// media link table. Join tables shared by two models are emitted by both;
// IF NOT EXISTS makes that harmless.
func Statements(m *Model, d orm.Dialect) []string {
	qi := d.QuoteIdent
	var stmts []string

	defs := []string{primaryKeyDef(d)}
	for _, a := range m.Attributes {
		if !a.IsScalar() {
			continue
		}
		def := qi(a.Name) + " " + columnType(a.Type, d)
		if a.Unique && uniqueable(a.Type) {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	for _, as := range m.Associations() {
		if as.HasColumn() {
			defs = append(defs, qi(as.Alias)+" "+foreignKeyType(d))
		}
	}
	if m.Options.Timestamps {
		ts := columnType(TypeDateTime, d)
		defs = append(defs, qi(CreatedAt)+" "+ts, qi(UpdatedAt)+" "+ts)
	}
	if cols := m.SearchColumns(); d.Name() == orm.NameMySQL && len(cols) > 0 {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = qi(c)
		}
		defs = append(defs, "FULLTEXT KEY "+qi(m.CollectionName+"_search")+" ("+strings.Join(quoted, ", ")+")")
	}
	stmts = append(stmts, createTable(d, m.CollectionName, defs))

	if len(m.GroupAttributes()) > 0 {
		stmts = append(stmts, createTable(d, m.GroupJoinTable(), []string{
			primaryKeyDef(d),
			qi(m.GroupForeignKey()) + " " + foreignKeyType(d),
			qi("field") + " " + columnType(TypeString, d),
			qi("order") + " " + columnType(TypeInteger, d),
			qi("slice_type") + " " + columnType(TypeString, d),
			qi("slice_id") + " " + foreignKeyType(d),
		}))
	}

	for _, as := range m.Associations() {
		if !as.UsesJoinTable() {
			continue
		}
		stmts = append(stmts, createTable(d, as.JoinTable, []string{
			primaryKeyDef(d),
			qi(as.JoinColumn) + " " + foreignKeyType(d),
			qi(as.InverseJoinColumn) + " " + foreignKeyType(d),
		}))
	}

	if m.UID == FileModelUID {
		stmts = append(stmts, createTable(d, MorphTable, []string{
			primaryKeyDef(d),
			qi(MorphFileColumn) + " " + foreignKeyType(d),
			qi(MorphRelatedIDColumn) + " " + foreignKeyType(d),
			qi(MorphRelatedTypeColumn) + " " + columnType(TypeString, d),
			qi(MorphFieldColumn) + " " + columnType(TypeString, d),
			qi(MorphOrderColumn) + " " + columnType(TypeInteger, d),
		}))
	}
	return stmts
}

func createTable(d orm.Dialect, table string, defs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.QuoteIdent(table), strings.Join(defs, ",\n  "))
}

func primaryKeyDef(d orm.Dialect) string {
	switch d.Name() {
	case orm.NameMySQL:
		return d.QuoteIdent(PrimaryKey) + " INT AUTO_INCREMENT PRIMARY KEY"
	case orm.NamePostgreSQL:
		return d.QuoteIdent(PrimaryKey) + " SERIAL PRIMARY KEY"
	default:
		return d.QuoteIdent(PrimaryKey) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func foreignKeyType(d orm.Dialect) string {
	if d.Name() == orm.NameMySQL {
		return "INT NULL"
	}
	return "INTEGER NULL"
}

// uniqueable reports whether a UNIQUE constraint can be declared inline.
// MySQL cannot index unbounded text columns.
func uniqueable(t Type) bool {
	switch t {
	case TypeText, TypeRichText, TypeJSON:
		return false
	default:
		return true
	}
}

var columnTypes = map[string]map[Type]string{
	orm.NameMySQL: {
		TypeString: "VARCHAR(255)", TypeText: "LONGTEXT", TypeRichText: "LONGTEXT",
		TypeInteger: "INT", TypeBigInteger: "BIGINT",
		TypeFloat: "DOUBLE", TypeDecimal: "DECIMAL(10,2)", TypeBoolean: "BOOLEAN",
		TypeDate: "DATE", TypeDateTime: "DATETIME", TypeTime: "TIME", TypeJSON: "JSON",
	},
	orm.NamePostgreSQL: {
		TypeString: "VARCHAR(255)", TypeText: "TEXT", TypeRichText: "TEXT",
		TypeInteger: "INTEGER", TypeBigInteger: "BIGINT",
		TypeFloat: "DOUBLE PRECISION", TypeDecimal: "DECIMAL(10,2)", TypeBoolean: "BOOLEAN",
		TypeDate: "DATE", TypeDateTime: "TIMESTAMPTZ", TypeTime: "TIME", TypeJSON: "JSONB",
	},
	orm.NameSQLite: {
		TypeString: "TEXT", TypeText: "TEXT", TypeRichText: "TEXT",
		TypeInteger: "INTEGER", TypeBigInteger: "INTEGER",
		TypeFloat: "REAL", TypeDecimal: "NUMERIC", TypeBoolean: "BOOLEAN",
		TypeDate: "DATE", TypeDateTime: "DATETIME", TypeTime: "TEXT", TypeJSON: "TEXT",
	},
}

func columnType(t Type, d orm.Dialect) string {
	switch t {
	case TypeEmail, TypePassword, TypeUID, TypeEnumeration:
		t = TypeString
	}
	return columnTypes[d.Name()][t]
}
