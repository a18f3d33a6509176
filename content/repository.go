package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cast"
	"golang.org/x/crypto/bcrypt"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/restquery"
	"github.com/mickamy/contentorm/schema"
	"github.com/mickamy/contentorm/scope"
)

// Store gives access to the repositories of every registered model.
type Store struct {
	db       *orm.DB
	registry *schema.Registry
}

// NewStore returns a Store over a resolved registry.
func NewStore(db *orm.DB, registry *schema.Registry) *Store {
	return &Store{db: db, registry: registry}
}

// Registry returns the registry the store was built with.
func (s *Store) Registry() *schema.Registry { return s.registry }

// Repository returns the repository of the content type uid. Unknown
// models yield a 404.
func (s *Store) Repository(uid string) (*Repository, error) {
	m, err := s.registry.Model(uid)
	if err != nil {
		return nil, apperr.Wrap(err, http.StatusNotFound, "model not found")
	}
	return &Repository{store: s, model: m}, nil
}

// Repository runs queries and writes for one content type.
type Repository struct {
	store *Store
	model *schema.Model
}

// Model returns the model the repository serves.
func (r *Repository) Model() *schema.Model { return r.model }

// Find returns the entries matching params. populate lists the
// associations to load; nil loads every auto-populated association.
func (r *Repository) Find(ctx context.Context, params restquery.Params, populate []string) ([]Entry, error) {
	f, err := restquery.Convert(params)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, r.store.db, f, true, populate)
}

func (r *Repository) find(ctx context.Context, db orm.Querier, f restquery.Filters, withWhere bool, populate []string) ([]Entry, error) {
	d := orm.DialectOf(db)
	var scopes []scope.Scope
	if withWhere {
		where, err := restquery.WhereScopes(f, d, r.resolver(d))
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, where...)
	}
	if s, ok := searchScope(r.model, d, f.Query); ok {
		scopes = append(scopes, s)
	}
	order, err := restquery.OrderScopes(f, r.resolver(d))
	if err != nil {
		return nil, err
	}
	scopes = append(scopes, order...)

	list, err := entries(db, r.model).Scopes(scopes...).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", r.model.UID, err)
	}
	if err := r.store.populate(ctx, db, r.model, list, populate); err != nil {
		return nil, err
	}
	return list, nil
}

// FindOne returns the entry with the given id.
func (r *Repository) FindOne(ctx context.Context, id any, populate []string) (Entry, error) {
	pk, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, r.store.db, pk, populate)
}

func (r *Repository) findOne(ctx context.Context, db orm.Querier, id int64, populate []string) (Entry, error) {
	qi := orm.DialectOf(db).QuoteIdent
	e, err := entries(db, r.model).Where(qi(schema.PrimaryKey)+" = ?", id).First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return nil, apperr.Wrap(err, http.StatusNotFound, "entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %d: %w", r.model.UID, id, err)
	}
	list := []Entry{e}
	if err := r.store.populate(ctx, db, r.model, list, populate); err != nil {
		return nil, err
	}
	return list[0], nil
}

// Count returns the number of entries matching the field filters of
// params. Sorting, paging and search text are ignored.
func (r *Repository) Count(ctx context.Context, params restquery.Params) (int64, error) {
	f, err := restquery.Convert(params)
	if err != nil {
		return 0, err
	}
	db := r.store.db
	where, err := restquery.WhereScopes(f, db.Dialect(), r.resolver(db.Dialect()))
	if err != nil {
		return 0, err
	}
	n, err := entries(db, r.model).Scopes(where...).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.model.UID, err)
	}
	return n, nil
}

// Search returns the entries matching the _q text of params, honouring
// _sort, _start and _limit. Field filters are ignored.
func (r *Repository) Search(ctx context.Context, params restquery.Params, populate []string) ([]Entry, error) {
	f, err := restquery.Convert(params)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, r.store.db, f, false, populate)
}

// CountSearch counts the entries matching the _q text of params.
func (r *Repository) CountSearch(ctx context.Context, params restquery.Params) (int64, error) {
	f, err := restquery.Convert(params)
	if err != nil {
		return 0, err
	}
	q := entries(r.store.db, r.model)
	if s, ok := searchScope(r.model, r.store.db.Dialect(), f.Query); ok {
		q = q.Scopes(s)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.model.UID, err)
	}
	return n, nil
}

// FindPage returns one page of entries matching the filters and search
// text of pq, with its pagination.
func (r *Repository) FindPage(ctx context.Context, pq restquery.PageQuery, populate []string) (restquery.Page[Entry], error) {
	f, err := pq.Filters()
	if err != nil {
		return restquery.Page[Entry]{}, err
	}
	db := r.store.db
	d := db.Dialect()

	where, err := restquery.WhereScopes(f, d, r.resolver(d))
	if err != nil {
		return restquery.Page[Entry]{}, err
	}
	if s, ok := searchScope(r.model, d, f.Query); ok {
		where = append(where, s)
	}
	total, err := entries(db, r.model).Scopes(where...).Count(ctx)
	if err != nil {
		return restquery.Page[Entry]{}, fmt.Errorf("count %s: %w", r.model.UID, err)
	}

	results, err := r.find(ctx, db, f, true, populate)
	if err != nil {
		return restquery.Page[Entry]{}, err
	}
	if results == nil {
		results = []Entry{}
	}
	return restquery.Page[Entry]{Results: results, Pagination: pq.Pagination(total)}, nil
}

// Create inserts an entry with its groups and relations in one
// transaction and returns it populated.
func (r *Repository) Create(ctx context.Context, values Entry) (Entry, error) {
	w, err := r.split(values, true)
	if err != nil {
		return nil, err
	}
	if r.model.Options.Timestamps {
		now := orm.Now(ctx).UTC()
		w.row[schema.CreatedAt] = now
		w.row[schema.UpdatedAt] = now
	}

	var created Entry
	err = r.store.db.Transaction(ctx, func(tx *orm.Tx) error {
		row := w.row
		if err := entries(tx, r.model).Create(ctx, &row); err != nil {
			return fmt.Errorf("create %s: %w", r.model.UID, err)
		}
		id := row.ID()
		if err := r.createGroups(ctx, tx, id, w.groups); err != nil {
			return err
		}
		if err := r.writeRelations(ctx, tx, id, w.relations); err != nil {
			return err
		}
		var err error
		created, err = r.findOne(ctx, tx, id, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update patches the entry with the given id. Only the attributes present
// in values are written; groups absent from values are left untouched.
func (r *Repository) Update(ctx context.Context, id any, values Entry) (Entry, error) {
	pk, err := parseID(id)
	if err != nil {
		return nil, err
	}
	w, err := r.split(values, false)
	if err != nil {
		return nil, err
	}
	w.row[schema.PrimaryKey] = pk
	if r.model.Options.Timestamps {
		w.row[schema.UpdatedAt] = orm.Now(ctx).UTC()
	}

	var updated Entry
	err = r.store.db.Transaction(ctx, func(tx *orm.Tx) error {
		if _, err := r.findOne(ctx, tx, pk, []string{}); err != nil {
			return err
		}
		row := w.row
		if err := entries(tx, r.model).Update(ctx, &row); err != nil {
			return fmt.Errorf("update %s %d: %w", r.model.UID, pk, err)
		}
		if err := r.updateGroups(ctx, tx, pk, w.groups); err != nil {
			return err
		}
		if err := r.writeRelations(ctx, tx, pk, w.relations); err != nil {
			return err
		}
		var err error
		updated, err = r.findOne(ctx, tx, pk, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the entry with the given id, its groups and its
// relation links, and returns the entry as it was before deletion.
func (r *Repository) Delete(ctx context.Context, id any) (Entry, error) {
	pk, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var deleted Entry
	err = r.store.db.Transaction(ctx, func(tx *orm.Tx) error {
		var err error
		deleted, err = r.findOne(ctx, tx, pk, nil)
		if err != nil {
			return err
		}
		if err := r.writeRelations(ctx, tx, pk, r.clearedRelations()); err != nil {
			return err
		}
		if err := r.deleteAllGroups(ctx, tx, pk); err != nil {
			return err
		}
		qi := orm.DialectOf(tx).QuoteIdent
		if r.model.UID == schema.FileModelUID {
			// a removed file leaves no dangling media links
			if err := morphLinks(tx).Where(qi(schema.MorphFileColumn)+" = ?", pk).Delete(ctx); err != nil {
				return fmt.Errorf("unlink file %d: %w", pk, err)
			}
		}
		if err := entries(tx, r.model).Where(qi(schema.PrimaryKey)+" = ?", pk).Delete(ctx); err != nil {
			return fmt.Errorf("delete %s %d: %w", r.model.UID, pk, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Sanitize removes private attributes from e and from the entries
// populated inside it.
func (r *Repository) Sanitize(e Entry) Entry {
	return r.store.sanitize(r.model, e)
}

// writeSet is an input payload split by storage.
type writeSet struct {
	row       Entry
	groups    Entry
	relations Entry
}

// split coerces column values and separates groups and relations. Keys
// that are not attributes of the model are dropped.
func (r *Repository) split(values Entry, creating bool) (writeSet, error) {
	row, err := columnValues(r.model, values, creating)
	if err != nil {
		return writeSet{}, err
	}
	w := writeSet{row: row, groups: Entry{}, relations: Entry{}}

	for _, a := range r.model.Attributes {
		v, present := values[a.Name]
		switch a.Type {
		case schema.TypeGroup:
			if present {
				w.groups[a.Name] = v
			}
		case schema.TypeRelation, schema.TypeMedia:
			as := r.model.Association(a.Name)
			if as.HasColumn() {
				if !present {
					if creating {
						w.row[a.Name] = nil
					}
					continue
				}
				target, err := singleID(a.Name, v)
				if err != nil {
					return writeSet{}, err
				}
				if target == nil {
					w.row[a.Name] = nil
				} else {
					w.row[a.Name] = *target
				}
			}
			if present && as.Nature != schema.ManyToOne && as.Nature != schema.OneWay {
				w.relations[a.Name] = v
			}
		}
	}
	return w, nil
}

// columnValues coerces the scalar attributes of values. On create,
// absent attributes take their default or NULL and required ones must be
// present.
func columnValues(m *schema.Model, values Entry, creating bool) (Entry, error) {
	row := Entry{}
	for _, a := range m.Attributes {
		if !a.IsScalar() {
			continue
		}
		v, present := values[a.Name]
		if !present {
			if !creating {
				continue
			}
			if a.Default == nil && a.IsRequired() {
				return nil, apperr.Validation(a.Name + " is required")
			}
			v = a.Default
		}
		if v == nil && a.IsRequired() {
			return nil, apperr.Validation(a.Name + " is required")
		}
		c, err := a.Coerce(v)
		if err != nil {
			return nil, apperr.Wrap(err, http.StatusBadRequest, "invalid value for "+a.Name)
		}
		if a.Type == schema.TypePassword && c != nil {
			if c, err = hashPassword(c.(string)); err != nil {
				return nil, err
			}
		}
		row[a.Name] = c
	}
	return row, nil
}

func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(err, http.StatusBadRequest, "invalid password")
	}
	return string(hash), nil
}

// resolver exposes the columns of the model to query filters.
func (r *Repository) resolver(d orm.Dialect) restquery.Resolver {
	m := r.model
	return func(name string) (restquery.Field, bool) {
		if !m.HasColumn(name) {
			return restquery.Field{}, false
		}
		field := restquery.Field{Column: d.QuoteIdent(name)}
		switch a := m.Attribute(name); {
		case a != nil && a.Type == schema.TypePassword:
			return restquery.Field{}, false
		case a != nil:
			field.Coerce = a.Coerce
		case name == schema.CreatedAt || name == schema.UpdatedAt:
			field.Coerce = timestampAttr.Coerce
		default:
			field.Coerce = coerceID
		}
		return field, true
	}
}

func coerceID(v any) (any, error) {
	return cast.ToInt64E(v)
}

// parseID converts a path or payload id to int64.
func parseID(id any) (int64, error) {
	pk, err := cast.ToInt64E(id)
	if err != nil || pk <= 0 {
		return 0, apperr.BadRequest("invalid id %v", id)
	}
	return pk, nil
}
