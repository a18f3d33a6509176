package content

import (
	"github.com/mickamy/contentorm/schema"
)

// sanitize returns a copy of e without private attributes. Populated
// associations and groups are sanitised with their own model.
func (s *Store) sanitize(m *schema.Model, e Entry) Entry {
	if e == nil {
		return nil
	}
	out := make(Entry, len(e))
	for k, v := range e {
		a := m.Attribute(k)
		if a != nil && a.IsPrivate() {
			continue
		}
		out[k] = v
		if a == nil {
			continue
		}

		var nested *schema.Model
		switch a.Type {
		case schema.TypeGroup:
			nested, _ = s.registry.Group(a.Group)
		case schema.TypeRelation, schema.TypeMedia:
			if as := m.Association(k); as != nil {
				nested, _ = s.registry.Model(as.Target)
			}
		}
		if nested == nil {
			continue
		}
		switch val := v.(type) {
		case Entry:
			out[k] = s.sanitize(nested, val)
		case []Entry:
			list := make([]Entry, len(val))
			for i, item := range val {
				list[i] = s.sanitize(nested, item)
			}
			out[k] = list
		}
	}
	return out
}

// SanitizeAll sanitises every entry of list.
func (r *Repository) SanitizeAll(list []Entry) []Entry {
	out := make([]Entry, len(list))
	for i, e := range list {
		out[i] = r.Sanitize(e)
	}
	return out
}
