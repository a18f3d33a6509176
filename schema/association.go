package schema

import (
	"github.com/mickamy/contentorm/internal/naming"
)

// Nature is the cardinality of an association.
type Nature string

const (
	OneWay          Nature = "oneWay"
	ManyWay         Nature = "manyWay"
	OneToOne        Nature = "oneToOne"
	ManyToOne       Nature = "manyToOne"
	OneToMany       Nature = "oneToMany"
	ManyToMany      Nature = "manyToMany"
	OneToManyMorph  Nature = "oneToManyMorph"
	ManyToManyMorph Nature = "manyToManyMorph"
)

// Association is a resolved relation or media attribute.
type Association struct {
	Alias        string
	Nature       Nature
	Target       string
	Via          string
	Dominant     bool
	AutoPopulate bool

	// Join table of manyWay and manyToMany associations. JoinColumn
	// references the owning model, InverseJoinColumn the target.
	JoinTable         string
	JoinColumn        string
	InverseJoinColumn string
}

// Single reports whether the association holds at most one entry.
func (a *Association) Single() bool {
	switch a.Nature {
	case OneWay, OneToOne, ManyToOne, OneToManyMorph:
		return true
	default:
		return false
	}
}

// HasColumn reports whether the owning table stores the target id in a
// column named after the alias.
func (a *Association) HasColumn() bool {
	switch a.Nature {
	case OneWay, OneToOne, ManyToOne:
		return true
	default:
		return false
	}
}

// Morph reports whether the association goes through the media link table.
func (a *Association) Morph() bool {
	return a.Nature == OneToManyMorph || a.Nature == ManyToManyMorph
}

// UsesJoinTable reports whether the association is stored in JoinTable.
func (a *Association) UsesJoinTable() bool {
	return a.Nature == ManyWay || a.Nature == ManyToMany
}

// nature derives the association nature from both sides of a relation.
// inverse is the attribute named by via on the target, or nil.
func nature(attr, inverse *Attribute) Nature {
	if attr.Type == TypeMedia {
		if attr.Multiple {
			return ManyToManyMorph
		}
		return OneToManyMorph
	}
	switch {
	case inverse == nil && attr.Model != "":
		return OneWay
	case inverse == nil:
		return ManyWay
	case attr.Model != "" && inverse.Model != "":
		return OneToOne
	case attr.Model != "":
		return ManyToOne
	case inverse.Model != "":
		return OneToMany
	default:
		return ManyToMany
	}
}

// manyWayTable names the join table of a one-sided collection.
func manyWayTable(owner *Model, alias string, target *Model) (table, col, inverse string) {
	col = naming.ForeignKey(owner.CollectionName)
	inverse = naming.ForeignKey(target.CollectionName)
	if col == inverse {
		inverse = "related_" + inverse
	}
	return owner.CollectionName + "__" + alias, col, inverse
}

// manyToManyTable names the join table shared by both sides of a
// many-to-many relation. Both sides resolve to the same table; the side
// whose "<collection>_<alias>" sorts first owns the plain foreign key when
// a model relates to itself.
func manyToManyTable(owner *Model, alias string, target *Model, via string) (table, col, inverse string) {
	left := owner.CollectionName + "_" + alias
	right := target.CollectionName + "_" + via
	first := left <= right
	if first {
		table = left + "__" + right
	} else {
		table = right + "__" + left
	}

	col = naming.ForeignKey(owner.CollectionName)
	inverse = naming.ForeignKey(target.CollectionName)
	if col == inverse {
		if first {
			inverse = "related_" + inverse
		} else {
			col = "related_" + col
		}
	}
	return table, col, inverse
}
