package content

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
	"github.com/mickamy/contentorm/scope"
)

// writeRelations stores the relation values that live outside the
// entry's own row: the far side of one-to-one and one-to-many relations,
// join tables and media links.
func (r *Repository) writeRelations(ctx context.Context, tx *orm.Tx, entryID int64, values Entry) error {
	for _, as := range r.model.Associations() {
		raw, present := values[as.Alias]
		if !present {
			continue
		}

		var err error
		switch as.Nature {
		case schema.OneToOne:
			var target *int64
			if target, err = singleID(as.Alias, raw); err == nil {
				err = r.syncOneToOne(ctx, tx, as, entryID, target)
			}
		case schema.OneToMany:
			var ids []int64
			if ids, err = manyIDs(as.Alias, raw); err == nil {
				err = r.syncOneToMany(ctx, tx, as, entryID, ids)
			}
		case schema.ManyWay, schema.ManyToMany:
			var ids []int64
			if ids, err = manyIDs(as.Alias, raw); err == nil {
				err = r.syncJoinTable(ctx, tx, as, entryID, ids)
			}
		case schema.OneToManyMorph:
			var target *int64
			if target, err = singleID(as.Alias, raw); err == nil {
				var ids []int64
				if target != nil {
					ids = []int64{*target}
				}
				err = r.syncMorph(ctx, tx, as, entryID, ids)
			}
		case schema.ManyToManyMorph:
			var ids []int64
			if ids, err = manyIDs(as.Alias, raw); err == nil {
				err = r.syncMorph(ctx, tx, as, entryID, ids)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// clearedRelations returns the values detaching every relation: NULL for
// single natures and an empty list for collections.
func (r *Repository) clearedRelations() Entry {
	values := Entry{}
	for _, as := range r.model.Associations() {
		switch as.Nature {
		case schema.OneWay, schema.OneToOne, schema.ManyToOne, schema.OneToManyMorph:
			values[as.Alias] = nil
		default:
			values[as.Alias] = []any{}
		}
	}
	return values
}

// syncOneToOne points the target's via column at the entry and detaches
// the previous partners on both sides.
func (r *Repository) syncOneToOne(ctx context.Context, tx *orm.Tx, as *schema.Association, entryID int64, target *int64) error {
	tm, err := r.store.registry.Model(as.Target)
	if err != nil {
		return err //nolint:wrapcheck // resolved registry
	}
	qi := orm.DialectOf(tx).QuoteIdent
	pk := qi(schema.PrimaryKey)

	if target != nil {
		err := entries(tx, r.model).
			Where(qi(as.Alias)+" = ?", *target).
			Where(pk+" <> ?", entryID).
			UpdateColumns(ctx, []string{as.Alias}, []any{nil})
		if err != nil {
			return fmt.Errorf("detach %s: %w", as.Alias, err)
		}
	}
	err = entries(tx, tm).Where(qi(as.Via)+" = ?", entryID).UpdateColumns(ctx, []string{as.Via}, []any{nil})
	if err != nil {
		return fmt.Errorf("detach %s.%s: %w", tm.UID, as.Via, err)
	}
	if target == nil {
		return nil
	}
	err = entries(tx, tm).Where(pk+" = ?", *target).UpdateColumns(ctx, []string{as.Via}, []any{entryID})
	if err != nil {
		return fmt.Errorf("attach %s.%s: %w", tm.UID, as.Via, err)
	}
	return nil
}

// syncOneToMany makes exactly the given target rows point at the entry.
func (r *Repository) syncOneToMany(ctx context.Context, tx *orm.Tx, as *schema.Association, entryID int64, ids []int64) error {
	tm, err := r.store.registry.Model(as.Target)
	if err != nil {
		return err //nolint:wrapcheck // resolved registry
	}
	qi := orm.DialectOf(tx).QuoteIdent
	pk := qi(schema.PrimaryKey)

	err = entries(tx, tm).
		Where(qi(as.Via)+" = ?", entryID).
		Scopes(scope.NotIn(pk, ids)).
		UpdateColumns(ctx, []string{as.Via}, []any{nil})
	if err != nil {
		return fmt.Errorf("detach %s.%s: %w", tm.UID, as.Via, err)
	}
	if len(ids) == 0 {
		return nil
	}
	err = entries(tx, tm).Scopes(scope.In(pk, ids)).UpdateColumns(ctx, []string{as.Via}, []any{entryID})
	if err != nil {
		return fmt.Errorf("attach %s.%s: %w", tm.UID, as.Via, err)
	}
	return nil
}

// syncJoinTable replaces the join rows of the entry.
func (r *Repository) syncJoinTable(ctx context.Context, tx *orm.Tx, as *schema.Association, entryID int64, ids []int64) error {
	qi := orm.DialectOf(tx).QuoteIdent
	if err := joinRows(tx, as).Where(qi(as.JoinColumn)+" = ?", entryID).Delete(ctx); err != nil {
		return fmt.Errorf("unlink %s: %w", as.Alias, err)
	}
	rows := make([]*joinRow, 0, len(ids))
	for _, id := range dedupe(ids) {
		rows = append(rows, &joinRow{Source: entryID, Target: id})
	}
	if err := joinRows(tx, as).CreateAll(ctx, rows); err != nil {
		return fmt.Errorf("link %s: %w", as.Alias, err)
	}
	return nil
}

// syncMorph replaces the media links of one field of the entry.
func (r *Repository) syncMorph(ctx context.Context, tx *orm.Tx, as *schema.Association, entryID int64, fileIDs []int64) error {
	qi := orm.DialectOf(tx).QuoteIdent
	err := morphLinks(tx).
		Where(qi(schema.MorphRelatedIDColumn)+" = ?", entryID).
		Where(qi(schema.MorphRelatedTypeColumn)+" = ?", r.model.CollectionName).
		Where(qi(schema.MorphFieldColumn)+" = ?", as.Alias).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("unlink media %s: %w", as.Alias, err)
	}
	links := make([]*morphLink, 0, len(fileIDs))
	for i, id := range dedupe(fileIDs) {
		links = append(links, &morphLink{
			FileID:      id,
			RelatedID:   entryID,
			RelatedType: r.model.CollectionName,
			Field:       as.Alias,
			Order:       int64(i + 1),
		})
	}
	if err := morphLinks(tx).CreateAll(ctx, links); err != nil {
		return fmt.Errorf("link media %s: %w", as.Alias, err)
	}
	return nil
}

// singleID reads the target of a single relation: an id, an object with
// an id, or nil.
func singleID(alias string, raw any) (*int64, error) {
	if raw == nil {
		return nil, nil
	}
	if _, isList := asList(raw); isList {
		return nil, apperr.BadRequest("%s expects a single relation", alias)
	}
	id, err := relationID(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid relation value for %s", alias)
	}
	return &id, nil
}

// manyIDs reads the targets of a collection relation.
func manyIDs(alias string, raw any) ([]int64, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := asList(raw)
	if !ok {
		list = []any{raw}
	}
	ids := make([]int64, 0, len(list))
	for _, v := range list {
		id, err := relationID(v)
		if err != nil {
			return nil, apperr.BadRequest("invalid relation value for %s", alias)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func relationID(v any) (int64, error) {
	if e, ok := asEntry(v); ok {
		v = e[schema.PrimaryKey]
	}
	id, err := cast.ToInt64E(v)
	if err != nil {
		return 0, err //nolint:wrapcheck // caller reports
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid id %d", id)
	}
	return id, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
