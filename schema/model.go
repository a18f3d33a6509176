// Package schema describes content types and groups: their attributes,
// their associations and the tables that store them.
package schema

import (
	"github.com/mickamy/contentorm/internal/naming"
)

// Kind distinguishes top-level content types from groups.
type Kind string

const (
	KindContentType Kind = "contentType"
	KindGroup       Kind = "group"
)

// PrimaryKey is the primary key column of every model.
const PrimaryKey = "id"

// Timestamp columns written when a model enables timestamps.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
)

// Options are per-model switches.
type Options struct {
	Timestamps bool `yaml:"timestamps"`
}

// Model is a content type or a group definition.
type Model struct {
	UID            string     `yaml:"name"`
	Kind           Kind       `yaml:"-"`
	CollectionName string     `yaml:"collectionName"`
	Connection     string     `yaml:"connection"`
	Description    string     `yaml:"description"`
	Options        Options    `yaml:"options"`
	Attributes     Attributes `yaml:"attributes"`

	associations []*Association
}

// PrimaryKey returns the primary key column.
func (m *Model) PrimaryKey() string { return PrimaryKey }

// Attribute returns the attribute called name, or nil.
func (m *Model) Attribute(name string) *Attribute {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Associations returns the resolved associations in declaration order.
// It is empty until the model is resolved by a Registry.
func (m *Model) Associations() []*Association { return m.associations }

// Association returns the association with the given alias, or nil.
func (m *Model) Association(alias string) *Association {
	for _, a := range m.associations {
		if a.Alias == alias {
			return a
		}
	}
	return nil
}

// GroupAttributes returns the attributes of type group.
func (m *Model) GroupAttributes() []*Attribute {
	var out []*Attribute
	for _, a := range m.Attributes {
		if a.Type == TypeGroup {
			out = append(out, a)
		}
	}
	return out
}

// Columns returns every column of the model's table in a stable order:
// the primary key, scalar attributes, foreign keys of single relations
// and the timestamp columns.
func (m *Model) Columns() []string {
	cols := []string{PrimaryKey}
	for _, a := range m.Attributes {
		if a.IsScalar() {
			cols = append(cols, a.Name)
		}
	}
	for _, as := range m.associations {
		if as.HasColumn() {
			cols = append(cols, as.Alias)
		}
	}
	if m.Options.Timestamps {
		cols = append(cols, CreatedAt, UpdatedAt)
	}
	return cols
}

// HasColumn reports whether name is a column of the model's table.
func (m *Model) HasColumn(name string) bool {
	for _, c := range m.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// SearchColumns returns the text columns used by full-text search.
func (m *Model) SearchColumns() []string {
	var out []string
	for _, a := range m.Attributes {
		if a.IsSearchableText() {
			out = append(out, a.Name)
		}
	}
	return out
}

// GroupJoinTable is the table linking entries of m to their group rows.
func (m *Model) GroupJoinTable() string { return m.CollectionName + "_groups" }

// GroupForeignKey is the column of GroupJoinTable referencing m.
func (m *Model) GroupForeignKey() string { return naming.ForeignKey(m.CollectionName) }

func (m *Model) setDefaults() {
	if m.Kind == "" {
		m.Kind = KindContentType
	}
	if m.CollectionName != "" {
		return
	}
	switch m.Kind {
	case KindGroup:
		m.CollectionName = "groups_" + naming.TableName(m.UID)
	default:
		m.CollectionName = naming.TableName(m.UID)
	}
}
