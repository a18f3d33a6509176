package content

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
	"github.com/mickamy/contentorm/scope"
)

// createGroups stores the group values of a new entry. Required groups
// must be present.
func (r *Repository) createGroups(ctx context.Context, tx *orm.Tx, entryID int64, values Entry) error {
	for _, attr := range r.model.GroupAttributes() {
		raw, present := values[attr.Name]
		if !present {
			if attr.IsRequired() {
				return apperr.BadRequest("Group %s is required", attr.Name)
			}
			continue
		}
		items, err := groupItems(attr, raw)
		if err != nil {
			return err
		}
		gm, err := r.store.registry.Group(attr.Group)
		if err != nil {
			return err //nolint:wrapcheck // resolved registry
		}
		for i, item := range items {
			delete(item, schema.PrimaryKey)
			if err := r.createGroupAndLink(ctx, tx, gm, attr, entryID, item, int64(i+1)); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateGroups replaces the groups present in values. Items carrying an
// id update the existing group row, which must already belong to the
// entry; items without one are created; rows missing from the payload are
// deleted.
func (r *Repository) updateGroups(ctx context.Context, tx *orm.Tx, entryID int64, values Entry) error {
	for _, attr := range r.model.GroupAttributes() {
		raw, present := values[attr.Name]
		if !present {
			continue
		}
		items, err := groupItems(attr, raw)
		if err != nil {
			return err
		}
		gm, err := r.store.registry.Group(attr.Group)
		if err != nil {
			return err //nolint:wrapcheck // resolved registry
		}
		if err := r.deleteOldGroups(ctx, tx, gm, attr, entryID, items); err != nil {
			return err
		}

		qi := orm.DialectOf(tx).QuoteIdent
		for i, item := range items {
			order := int64(i + 1)
			rawID, hasID := item[schema.PrimaryKey]
			if !hasID || rawID == nil {
				if err := r.createGroupAndLink(ctx, tx, gm, attr, entryID, item, order); err != nil {
					return err
				}
				continue
			}

			id := cast.ToInt64(rawID)
			row, err := columnValues(gm, item, false)
			if err != nil {
				return err
			}
			row[schema.PrimaryKey] = id
			if err := entries(tx, gm).Update(ctx, &row); err != nil {
				return fmt.Errorf("update group %s %d: %w", gm.UID, id, err)
			}
			err = groupLinks(tx, r.model).
				Where(qi(r.model.GroupForeignKey())+" = ?", entryID).
				Where(qi("field")+" = ?", attr.Name).
				Where(qi("slice_type")+" = ?", gm.CollectionName).
				Where(qi("slice_id")+" = ?", id).
				UpdateColumns(ctx, []string{"order"}, []any{order})
			if err != nil {
				return fmt.Errorf("reorder group %s %d: %w", gm.UID, id, err)
			}
		}
	}
	return nil
}

func (r *Repository) createGroupAndLink(ctx context.Context, tx *orm.Tx, gm *schema.Model, attr *schema.Attribute, entryID int64, item Entry, order int64) error {
	row, err := columnValues(gm, item, true)
	if err != nil {
		return err
	}
	if gm.Options.Timestamps {
		now := orm.Now(ctx).UTC()
		row[schema.CreatedAt] = now
		row[schema.UpdatedAt] = now
	}
	if err := entries(tx, gm).Create(ctx, &row); err != nil {
		return fmt.Errorf("create group %s: %w", gm.UID, err)
	}
	link := groupLink{
		EntityID:  entryID,
		Field:     attr.Name,
		Order:     order,
		SliceType: gm.CollectionName,
		SliceID:   row.ID(),
	}
	if err := groupLinks(tx, r.model).Create(ctx, &link); err != nil {
		return fmt.Errorf("link group %s: %w", gm.UID, err)
	}
	return nil
}

// deleteOldGroups removes the group rows of attr that are linked to the
// entry but not referenced by items. Referenced ids must be linked to the
// entry.
func (r *Repository) deleteOldGroups(ctx context.Context, tx *orm.Tx, gm *schema.Model, attr *schema.Attribute, entryID int64, items []Entry) error {
	var keep []int64
	for _, item := range items {
		if v, ok := item[schema.PrimaryKey]; ok && v != nil {
			id, err := cast.ToInt64E(v)
			if err != nil {
				return notRelated(attr)
			}
			keep = append(keep, id)
		}
	}

	qi := orm.DialectOf(tx).QuoteIdent
	links, err := groupLinks(tx, r.model).
		Where(qi(r.model.GroupForeignKey())+" = ?", entryID).
		Where(qi("field")+" = ?", attr.Name).
		All(ctx)
	if err != nil {
		return fmt.Errorf("load groups %s: %w", attr.Name, err)
	}
	linked := make([]int64, len(links))
	for i, l := range links {
		linked[i] = l.SliceID
	}

	for _, id := range keep {
		if !slices.Contains(linked, id) {
			return notRelated(attr)
		}
	}

	var stale []int64
	for _, id := range linked {
		if !slices.Contains(keep, id) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	err = groupLinks(tx, r.model).
		Where(qi(r.model.GroupForeignKey())+" = ?", entryID).
		Where(qi("field")+" = ?", attr.Name).
		Scopes(scope.In(qi("slice_id"), stale)).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("unlink groups %s: %w", attr.Name, err)
	}
	if err := entries(tx, gm).Scopes(scope.In(qi(schema.PrimaryKey), stale)).Delete(ctx); err != nil {
		return fmt.Errorf("delete groups %s: %w", attr.Name, err)
	}
	return nil
}

// deleteAllGroups removes every group row and link of the entry.
func (r *Repository) deleteAllGroups(ctx context.Context, tx *orm.Tx, entryID int64) error {
	for _, attr := range r.model.GroupAttributes() {
		gm, err := r.store.registry.Group(attr.Group)
		if err != nil {
			return err //nolint:wrapcheck // resolved registry
		}
		if err := r.deleteOldGroups(ctx, tx, gm, attr, entryID, nil); err != nil {
			return err
		}
	}
	return nil
}

func notRelated(attr *schema.Attribute) error {
	return apperr.BadRequest("Some of the provided groups in %s are not related to the entity", attr.Name)
}

// groupItems validates a group payload and returns its items.
func groupItems(attr *schema.Attribute, raw any) ([]Entry, error) {
	if !attr.IsRepeatable() {
		if raw == nil {
			if attr.IsRequired() {
				return nil, apperr.BadRequest("Group %s is required", attr.Name)
			}
			return nil, nil
		}
		item, ok := asEntry(raw)
		if !ok {
			return nil, apperr.BadRequest("Group %s should be an object", attr.Name)
		}
		return []Entry{item}, nil
	}

	list, ok := asList(raw)
	if !ok {
		return nil, apperr.BadRequest("Group %s is repetable. Expected an array", attr.Name)
	}
	if attr.Min > 0 && len(list) < attr.Min {
		return nil, apperr.BadRequest("Group %s must contain at least %d items", attr.Name, attr.Min)
	}
	if attr.Max > 0 && len(list) > attr.Max {
		return nil, apperr.BadRequest("Group %s must contain at most %d items", attr.Name, attr.Max)
	}
	items := make([]Entry, len(list))
	for i, v := range list {
		item, ok := asEntry(v)
		if !ok {
			return nil, apperr.BadRequest("Group %s should be an object", attr.Name)
		}
		items[i] = item
	}
	return items, nil
}

// asEntry returns a copy of v when it is an object.
func asEntry(v any) (Entry, bool) {
	var src map[string]any
	switch o := v.(type) {
	case Entry:
		src = o
	case map[string]any:
		src = o
	default:
		return nil, false
	}
	e := make(Entry, len(src))
	for k, val := range src {
		e[k] = val
	}
	return e, true
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []Entry:
		out := make([]any, len(l))
		for i, e := range l {
			out[i] = e
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, e := range l {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

// populateGroups loads the groups of every entry in list, in link order.
// Repeatable groups become []Entry, others an Entry or nil.
func (s *Store) populateGroups(ctx context.Context, db orm.Querier, m *schema.Model, list []Entry) error {
	attrs := m.GroupAttributes()
	if len(attrs) == 0 || len(list) == 0 {
		return nil
	}
	qi := orm.DialectOf(db).QuoteIdent

	ids := entryIDs(list)
	links, err := groupLinks(db, m).
		Scopes(scope.In(qi(m.GroupForeignKey()), ids)).
		OrderBy(qi("order")).
		All(ctx)
	if err != nil {
		return fmt.Errorf("load groups of %s: %w", m.UID, err)
	}

	for _, attr := range attrs {
		gm, err := s.registry.Group(attr.Group)
		if err != nil {
			return err //nolint:wrapcheck // resolved registry
		}

		var sliceIDs []int64
		for _, l := range links {
			if l.Field == attr.Name && l.SliceType == gm.CollectionName {
				sliceIDs = append(sliceIDs, l.SliceID)
			}
		}
		rows, err := loadByID(ctx, db, gm, sliceIDs)
		if err != nil {
			return err
		}

		byEntry := make(map[int64][]Entry, len(list))
		for _, l := range links {
			if l.Field != attr.Name || l.SliceType != gm.CollectionName {
				continue
			}
			if row, ok := rows[l.SliceID]; ok {
				byEntry[l.EntityID] = append(byEntry[l.EntityID], row)
			}
		}

		for _, e := range list {
			found := byEntry[e.ID()]
			switch {
			case attr.IsRepeatable():
				if found == nil {
					found = []Entry{}
				}
				e[attr.Name] = found
			case len(found) > 0:
				e[attr.Name] = found[0]
			default:
				e[attr.Name] = nil
			}
		}
	}
	return nil
}
