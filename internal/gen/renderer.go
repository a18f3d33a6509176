// Package gen renders typed Go models and query factories for content
// types, so application code can query entries without going through
// dynamic Entry maps.
package gen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"strings"
	"text/template"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/mickamy/contentorm/schema"
)

// Field is one column of a generated struct.
type Field struct {
	Name       string // Go field name, "AuthorID"
	Column     string // "author_id"
	JSONName   string // "author"
	GoType     string
	PrimaryKey bool
}

// Struct is the generated form of one model.
type Struct struct {
	Name    string // "Article"
	Table   string // "articles"
	Factory string // "Articles"
	Fields  []Field
}

// FromModel maps the columns of m to Go fields. Optional attributes become
// pointers; single relations stored on the row become *int64 foreign keys.
func FromModel(m *schema.Model) (Struct, error) {
	name := exportedName(inflection.Singular(m.UID))
	if name == "" {
		return Struct{}, fmt.Errorf("gen: model %q has no usable name", m.UID)
	}
	s := Struct{
		Name:    name,
		Table:   m.CollectionName,
		Factory: exportedName(m.CollectionName),
		Fields:  []Field{{Name: "ID", Column: schema.PrimaryKey, JSONName: schema.PrimaryKey, GoType: "int64", PrimaryKey: true}},
	}
	for _, a := range m.Attributes {
		if !a.IsScalar() {
			continue
		}
		typ := goType(a.Type)
		if !a.IsRequired() {
			typ = "*" + typ
		}
		s.Fields = append(s.Fields, Field{Name: exportedName(a.Name), Column: a.Name, JSONName: a.Name, GoType: typ})
	}
	for _, as := range m.Associations() {
		if as.HasColumn() {
			s.Fields = append(s.Fields, Field{Name: exportedName(as.Alias) + "ID", Column: as.Alias, JSONName: as.Alias, GoType: "*int64"})
		}
	}
	if m.Options.Timestamps {
		s.Fields = append(s.Fields,
			Field{Name: "CreatedAt", Column: schema.CreatedAt, JSONName: "created_at", GoType: "time.Time"},
			Field{Name: "UpdatedAt", Column: schema.UpdatedAt, JSONName: "updated_at", GoType: "time.Time"},
		)
	}

	seen := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		if prev, ok := seen[f.Name]; ok {
			return Struct{}, fmt.Errorf("gen: %s: columns %s and %s both map to field %s", m.UID, prev, f.Column, f.Name)
		}
		seen[f.Name] = f.Column
	}
	return s, nil
}

func goType(t schema.Type) string {
	switch t {
	case schema.TypeInteger, schema.TypeBigInteger:
		return "int64"
	case schema.TypeFloat, schema.TypeDecimal:
		return "float64"
	case schema.TypeBoolean:
		return "bool"
	case schema.TypeDateTime:
		return "time.Time"
	default:
		return "string"
	}
}

// commonInitialisms are kept upper case in field names.
var commonInitialisms = map[string]bool{
	"id": true, "url": true, "uid": true, "api": true, "html": true, "json": true, "seo": true, "uuid": true,
}

// exportedName converts a snake or kebab case identifier to an exported Go
// name: "preview_url" → "PreviewURL".
func exportedName(s string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		if commonInitialisms[strings.ToLower(part)] {
			b.WriteString(strings.ToUpper(part))
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	out := b.String()
	if out != "" && unicode.IsDigit([]rune(out)[0]) {
		out = "M" + out
	}
	return out
}

// RenderFile generates one Go source file holding every struct. The
// returned bytes are formatted by gofmt.
func RenderFile(pkg string, structs []Struct) ([]byte, error) {
	if len(structs) == 0 {
		return nil, errors.New("gen: no models to render")
	}
	data := fileTemplateData{Package: pkg}
	for _, s := range structs {
		for _, f := range s.Fields {
			if strings.Contains(f.GoType, "time.Time") {
				data.HasTime = true
			}
		}
		data.Structs = append(data.Structs, templateData{
			Struct:     s,
			ScanFunc:   "scan" + s.Name,
			ColValFunc: unexportedName(s.Name) + "ColumnValuePairs",
			SetPKFunc:  "set" + s.Name + "PK",
			ColumnsVar: unexportedName(s.Factory) + "Columns",
		})
	}

	var buf bytes.Buffer
	if err := fileTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("gen: execute template: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("gen: gofmt: %w", err)
	}
	return src, nil
}

// RenderRegistry renders every content type of r except the built-in file
// model.
func RenderRegistry(pkg string, r *schema.Registry) ([]byte, error) {
	var structs []Struct
	for _, m := range r.Models() {
		if m.UID == schema.FileModelUID {
			continue
		}
		s, err := FromModel(m)
		if err != nil {
			return nil, err
		}
		structs = append(structs, s)
	}
	return RenderFile(pkg, structs)
}

func unexportedName(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	// lower the leading initialism as a whole: "URLItems" → "urlItems"
	i := 0
	for i < len(runes) && unicode.IsUpper(runes[i]) {
		i++
	}
	if i > 1 && i < len(runes) {
		i--
	}
	for j := 0; j < i || j == 0; j++ {
		runes[j] = unicode.ToLower(runes[j])
	}
	return string(runes)
}

type fileTemplateData struct {
	Package string
	HasTime bool
	Structs []templateData
}

type templateData struct {
	Struct
	ScanFunc   string
	ColValFunc string
	SetPKFunc  string
	ColumnsVar string
}

func (d templateData) NonPKFields() []Field {
	var fields []Field
	for _, f := range d.Fields {
		if !f.PrimaryKey {
			fields = append(fields, f)
		}
	}
	return fields
}

var funcMap = template.FuncMap{
	"quote": func(s string) string {
		return `"` + s + `"`
	},
}

var fileTmpl = template.Must(template.New("gen").Funcs(funcMap).Parse(fileTemplate))

const fileTemplate = `// Code generated by contentd gen; DO NOT EDIT.
package {{.Package}}

import (
	"database/sql"
	{{- if .HasTime}}
	"time"
	{{- end}}

	"github.com/mickamy/contentorm/orm"
)
{{range .Structs}}
// {{.Name}} is an entry of the {{.Table}} table.
type {{.Name}} struct {
	{{- range .Fields}}
	{{.Name}} {{.GoType}} ` + "`" + `json:"{{.JSONName}}" db:"{{.Column}}"` + "`" + `
	{{- end}}
}

func ({{.Name}}) TableName() string { return {{quote .Table}} }

// {{.Factory}} returns a new Query for the {{.Table}} table.
func {{.Factory}}(db orm.Querier) *orm.Query[{{.Name}}] {
	return orm.NewQuery[{{.Name}}](
		db, orm.ResolveTableName[{{.Name}}]({{quote .Table}}), {{.ColumnsVar}}, "id",
		{{.ScanFunc}}, {{.ColValFunc}}, {{.SetPKFunc}},
	)
}

var {{.ColumnsVar}} = []string{ {{- range $i, $f := .Fields}}{{if $i}}, {{end}}{{quote $f.Column}}{{end -}} }

func {{.ScanFunc}}(rows *sql.Rows) ({{.Name}}, error) {
	cols, _ := rows.Columns()
	var v {{.Name}}
	dest := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		{{- range .Fields}}
		case {{quote .Column}}:
			dest[i] = &v.{{.Name}}
		{{- end}}
		default:
			dest[i] = new(any)
		}
	}
	err := rows.Scan(dest...)
	return v, err
}

func {{.ColValFunc}}(v *{{.Name}}, includesPK bool) ([]string, []any) {
	if includesPK {
		return {{.ColumnsVar}}, []any{ {{- range $i, $f := .Fields}}{{if $i}}, {{end}}v.{{$f.Name}}{{end -}} }
	}
	return {{.ColumnsVar}}[1:], []any{ {{- range $i, $f := .NonPKFields}}{{if $i}}, {{end}}v.{{$f.Name}}{{end -}} }
}

func {{.SetPKFunc}}(v *{{.Name}}, id int64) {
	v.ID = id
}
{{end}}`
