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

// populate loads groups and the named associations of every entry in
// list. A nil aliases slice selects every association whose autoPopulate
// is not false.
func (s *Store) populate(ctx context.Context, db orm.Querier, m *schema.Model, list []Entry, aliases []string) error {
	if len(list) == 0 {
		return nil
	}
	if err := s.populateGroups(ctx, db, m, list); err != nil {
		return err
	}

	if aliases == nil {
		for _, as := range m.Associations() {
			if as.AutoPopulate {
				aliases = append(aliases, as.Alias)
			}
		}
	}
	for _, alias := range aliases {
		as := m.Association(alias)
		if as == nil {
			return apperr.BadRequest("%s has no association %s", m.UID, alias)
		}
		if err := s.populateAssociation(ctx, db, m, as, list); err != nil {
			return fmt.Errorf("populate %s.%s: %w", m.UID, alias, err)
		}
	}
	return nil
}

func (s *Store) populateAssociation(ctx context.Context, db orm.Querier, m *schema.Model, as *schema.Association, list []Entry) error {
	tm, err := s.registry.Model(as.Target)
	if err != nil {
		return err //nolint:wrapcheck // resolved registry
	}
	qi := orm.DialectOf(db).QuoteIdent

	switch {
	case as.HasColumn():
		var ids []int64
		for _, e := range list {
			if id, ok := e[as.Alias].(int64); ok {
				ids = append(ids, id)
			}
		}
		targets, err := loadByID(ctx, db, tm, ids)
		if err != nil {
			return err
		}
		for _, e := range list {
			id, ok := e[as.Alias].(int64)
			if t, found := targets[id]; ok && found {
				e[as.Alias] = t
			} else {
				e[as.Alias] = nil
			}
		}

	case as.Nature == schema.OneToMany:
		rows, err := entries(db, tm).
			Scopes(scope.In(qi(as.Via), entryIDs(list))).
			OrderBy(qi(schema.PrimaryKey)).
			All(ctx)
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		bySource := make(map[int64][]Entry)
		for _, row := range rows {
			owner := cast.ToInt64(row[as.Via])
			bySource[owner] = append(bySource[owner], row)
		}
		assignMany(list, as.Alias, bySource)

	case as.UsesJoinTable():
		pairs, err := orm.QueryJoinTable[int64, int64](ctx, db, as.JoinTable, as.JoinColumn, as.InverseJoinColumn, entryIDs(list))
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		targets, err := loadByID(ctx, db, tm, orm.UniqueTargets(pairs))
		if err != nil {
			return err
		}
		bySource := make(map[int64][]Entry)
		for source, ids := range orm.GroupBySource(pairs) {
			for _, id := range ids {
				if t, ok := targets[id]; ok {
					bySource[source] = append(bySource[source], t)
				}
			}
		}
		assignMany(list, as.Alias, bySource)

	case as.Morph():
		links, err := morphLinks(db).
			Where(qi(schema.MorphRelatedTypeColumn)+" = ?", m.CollectionName).
			Where(qi(schema.MorphFieldColumn)+" = ?", as.Alias).
			Scopes(scope.In(qi(schema.MorphRelatedIDColumn), entryIDs(list))).
			OrderBy(qi(schema.MorphOrderColumn)).
			All(ctx)
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		fileIDs := make([]int64, len(links))
		for i, l := range links {
			fileIDs[i] = l.FileID
		}
		files, err := loadByID(ctx, db, tm, fileIDs)
		if err != nil {
			return err
		}
		bySource := make(map[int64][]Entry)
		for _, l := range links {
			if f, ok := files[l.FileID]; ok {
				bySource[l.RelatedID] = append(bySource[l.RelatedID], f)
			}
		}
		if as.Single() {
			for _, e := range list {
				if found := bySource[e.ID()]; len(found) > 0 {
					e[as.Alias] = found[0]
				} else {
					e[as.Alias] = nil
				}
			}
		} else {
			assignMany(list, as.Alias, bySource)
		}
	}
	return nil
}

func assignMany(list []Entry, alias string, bySource map[int64][]Entry) {
	for _, e := range list {
		found := bySource[e.ID()]
		if found == nil {
			found = []Entry{}
		}
		e[alias] = found
	}
}

// loadByID fetches the entries of m with the given ids, keyed by id.
func loadByID(ctx context.Context, db orm.Querier, m *schema.Model, ids []int64) (map[int64]Entry, error) {
	out := make(map[int64]Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	qi := orm.DialectOf(db).QuoteIdent
	rows, err := entries(db, m).Scopes(scope.In(qi(schema.PrimaryKey), dedupe(ids))).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.UID, err)
	}
	for _, row := range rows {
		out[row.ID()] = row
	}
	return out, nil
}

func entryIDs(list []Entry) []int64 {
	ids := make([]int64, len(list))
	for i, e := range list {
		ids[i] = e.ID()
	}
	return ids
}
