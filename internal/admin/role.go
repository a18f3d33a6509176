package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/orm"
)

// Role codes of the default roles.
const (
	SuperAdminCode = "super-admin"
	EditorCode     = "editor"
	AuthorCode     = "author"
)

var defaultRoles = []Role{
	{Name: "Super Admin", Code: SuperAdminCode, Description: ptr("Super Admins can access and manage all features and settings.")},
	{Name: "Editor", Code: EditorCode, Description: ptr("Editors can manage and publish contents including those of other users.")},
	{Name: "Author", Code: AuthorCode, Description: ptr("Authors can manage the content they have created.")},
}

// Roles manages administrator roles.
type Roles struct {
	db *orm.DB
}

// NewRoles returns a Roles service over db.
func NewRoles(db *orm.DB) *Roles {
	return &Roles{db: db}
}

// EnsureDefaultRoles creates the default roles that do not exist yet.
func (s *Roles) EnsureDefaultRoles(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx *orm.Tx) error {
		for _, r := range defaultRoles {
			exists, err := AdminRoles(tx).Where("code = ?", r.Code).Exists(ctx)
			if err != nil {
				return fmt.Errorf("admin: lookup role %s: %w", r.Code, err)
			}
			if exists {
				continue
			}
			now := orm.Now(ctx).UTC()
			r.CreatedAt, r.UpdatedAt = now, now
			if err := AdminRoles(tx).Create(ctx, &r); err != nil {
				return fmt.Errorf("admin: create role %s: %w", r.Code, err)
			}
		}
		return nil
	})
}

// FindOne returns the role with the given id.
func (s *Roles) FindOne(ctx context.Context, id int64) (Role, error) {
	r, err := AdminRoles(s.db).Where("id = ?", id).First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return Role{}, apperr.Wrap(err, http.StatusNotFound, "role not found")
	}
	if err != nil {
		return Role{}, fmt.Errorf("admin: find role %d: %w", id, err)
	}
	return r, nil
}

// GetSuperAdmin returns the super admin role.
func (s *Roles) GetSuperAdmin(ctx context.Context) (Role, error) {
	return s.superAdmin(ctx, s.db)
}

func (s *Roles) superAdmin(ctx context.Context, db orm.Querier) (Role, error) {
	r, err := AdminRoles(db).Where("code = ?", SuperAdminCode).First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return Role{}, apperr.Wrap(err, http.StatusNotFound, "super admin role not found")
	}
	if err != nil {
		return Role{}, fmt.Errorf("admin: find super admin role: %w", err)
	}
	return r, nil
}

// GetSuperAdminWithUsersCount returns the super admin role with the
// number of users holding it.
func (s *Roles) GetSuperAdminWithUsersCount(ctx context.Context) (Role, error) {
	return s.superAdminWithUsersCount(ctx, s.db)
}

func (s *Roles) superAdminWithUsersCount(ctx context.Context, db orm.Querier) (Role, error) {
	r, err := s.superAdmin(ctx, db)
	if err != nil {
		return Role{}, err
	}
	n, err := adminUsersRoles(db).Where(userRolesRoleCol+" = ?", r.ID).Count(ctx)
	if err != nil {
		return Role{}, fmt.Errorf("admin: count super admins: %w", err)
	}
	r.UsersCount = n
	return r, nil
}

// List returns every role with its users count.
func (s *Roles) List(ctx context.Context) ([]Role, error) {
	roles, err := AdminRoles(s.db).OrderBy("id").All(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin: list roles: %w", err)
	}
	links, err := adminUsersRoles(s.db).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin: list role links: %w", err)
	}
	counts := make(map[int64]int64)
	for _, l := range links {
		counts[l.RoleID]++
	}
	for i := range roles {
		roles[i].UsersCount = counts[roles[i].ID]
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}
