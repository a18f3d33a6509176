// Package admin manages back-office administrators and their roles.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/internal/naming"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/restquery"
	"github.com/mickamy/contentorm/scope"
)

var (
	errLastSuperAdmin       = apperr.Validation("You must have at least one user with super admin role.")
	errLastActiveSuperAdmin = apperr.Validation("You must have at least one active user with super admin role.")
)

// Users manages administrators.
type Users struct {
	db    *orm.DB
	roles *Roles
}

// NewUsers returns a Users service over db.
func NewUsers(db *orm.DB, roles *Roles) *Users {
	return &Users{db: db, roles: roles}
}

// CreateUser is the payload of Create.
type CreateUser struct {
	Email     string  `json:"email"`
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	IsActive  bool    `json:"isActive"`
	Roles     []int64 `json:"roles"`
}

// UserPatch lists the attributes UpdateByID changes. Nil fields are left
// untouched; a nil Roles keeps the current roles.
type UserPatch struct {
	Firstname        *string `json:"firstname"`
	Lastname         *string `json:"lastname"`
	Username         *string `json:"username"`
	Email            *string `json:"email"`
	Password         *string `json:"password"`
	IsActive         *bool   `json:"isActive"`
	Blocked          *bool   `json:"blocked"`
	PreferedLanguage *string `json:"preferedLanguage"`
	Roles            []int64 `json:"roles"`

	clearRegistrationToken bool
}

// RegistrationInfo is what an invited user sees before registering.
type RegistrationInfo struct {
	Email     string  `json:"email"`
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
}

// Registration completes an invitation.
type Registration struct {
	RegistrationToken string `json:"registrationToken"`
	Firstname         string `json:"firstname"`
	Lastname          string `json:"lastname"`
	Password          string `json:"password"`
}

// SanitizedRole is the public view of a role.
type SanitizedRole struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Code        string  `json:"code"`
}

// SanitizedUser is a user without its password and reset token.
type SanitizedUser struct {
	ID                int64           `json:"id"`
	Firstname         *string         `json:"firstname"`
	Lastname          *string         `json:"lastname"`
	Username          *string         `json:"username"`
	Email             string          `json:"email"`
	RegistrationToken *string         `json:"registrationToken"`
	IsActive          bool            `json:"isActive"`
	Blocked           bool            `json:"blocked"`
	PreferedLanguage  *string         `json:"preferedLanguage"`
	CreatedAt         string          `json:"createdAt"`
	UpdatedAt         string          `json:"updatedAt"`
	Roles             []SanitizedRole `json:"roles"`
}

// Sanitize removes the private fields of u.
func (s *Users) Sanitize(u User) SanitizedUser {
	out := SanitizedUser{
		ID:                u.ID,
		Firstname:         u.Firstname,
		Lastname:          u.Lastname,
		Username:          u.Username,
		Email:             u.Email,
		RegistrationToken: u.RegistrationToken,
		IsActive:          u.IsActive,
		Blocked:           u.Blocked,
		PreferedLanguage:  u.PreferedLanguage,
		CreatedAt:         u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		UpdatedAt:         u.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	if u.Roles != nil {
		out.Roles = make([]SanitizedRole, len(u.Roles))
		for i, r := range u.Roles {
			out.Roles[i] = SanitizedRole{ID: r.ID, Name: r.Name, Description: r.Description, Code: r.Code}
		}
	}
	return out
}

// Create stores a new user with a fresh registration token. The password,
// when given, is hashed.
func (s *Users) Create(ctx context.Context, in CreateUser) (User, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return User{}, apperr.Validation("email is required")
	}
	now := orm.Now(ctx).UTC()
	u := User{
		Email:             email,
		Firstname:         in.Firstname,
		Lastname:          in.Lastname,
		Username:          in.Username,
		IsActive:          in.IsActive,
		RegistrationToken: ptr(newToken()),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Password != nil {
		hash, err := validateAndHash(*in.Password)
		if err != nil {
			return User{}, err
		}
		u.Password = &hash
	}

	var created User
	err := s.db.Transaction(ctx, func(tx *orm.Tx) error {
		taken, err := AdminUsers(tx).Where("email = ?", email).Exists(ctx)
		if err != nil {
			return fmt.Errorf("admin: lookup email: %w", err)
		}
		if taken {
			return apperr.Validation("Email already taken")
		}
		if err := AdminUsers(tx).Create(ctx, &u); err != nil {
			return fmt.Errorf("admin: create user: %w", err)
		}
		if err := setRoles(ctx, tx, u.ID, in.Roles); err != nil {
			return err
		}
		created, err = findUser(ctx, tx, scope.Where("id = ?", u.ID))
		return err
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// UpdateByID patches the user with the given id. The last super admin
// can neither lose the role nor be deactivated.
func (s *Users) UpdateByID(ctx context.Context, id int64, patch UserPatch) (User, error) {
	var updated User
	err := s.db.Transaction(ctx, func(tx *orm.Tx) error {
		var err error
		updated, err = s.updateByID(ctx, tx, id, patch)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

func (s *Users) updateByID(ctx context.Context, tx *orm.Tx, id int64, patch UserPatch) (User, error) {
	u, err := findUser(ctx, tx, scope.Where("id = ?", id))
	if err != nil {
		return User{}, err
	}

	if patch.Roles != nil || (patch.IsActive != nil && !*patch.IsActive) {
		last, superAdmin, err := s.isLastSuperAdmin(ctx, tx, u)
		if err != nil {
			return User{}, err
		}
		if patch.Roles != nil && last && !slices.Contains(patch.Roles, superAdmin.ID) {
			return User{}, errLastSuperAdmin
		}
		if patch.IsActive != nil && !*patch.IsActive && last {
			return User{}, errLastActiveSuperAdmin
		}
	}

	var cols []string
	var vals []any
	set := func(col string, v any) {
		cols = append(cols, col)
		vals = append(vals, v)
	}
	if patch.Firstname != nil {
		set("firstname", *patch.Firstname)
	}
	if patch.Lastname != nil {
		set("lastname", *patch.Lastname)
	}
	if patch.Username != nil {
		set("username", *patch.Username)
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email == "" {
			return User{}, apperr.Validation("email is required")
		}
		taken, err := AdminUsers(tx).Where("email = ?", email).Where("id <> ?", id).Exists(ctx)
		if err != nil {
			return User{}, fmt.Errorf("admin: lookup email: %w", err)
		}
		if taken {
			return User{}, apperr.Validation("Email already taken")
		}
		set("email", email)
	}
	if patch.Password != nil {
		hash, err := validateAndHash(*patch.Password)
		if err != nil {
			return User{}, err
		}
		set("password", hash)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}
	if patch.Blocked != nil {
		set("blocked", *patch.Blocked)
	}
	if patch.PreferedLanguage != nil {
		set("prefered_language", *patch.PreferedLanguage)
	}
	if patch.clearRegistrationToken {
		set("registration_token", nil)
	}
	set("updated_at", orm.Now(ctx).UTC())

	if err := AdminUsers(tx).Where("id = ?", id).UpdateColumns(ctx, cols, vals); err != nil {
		return User{}, fmt.Errorf("admin: update user %d: %w", id, err)
	}
	if patch.Roles != nil {
		if err := setRoles(ctx, tx, id, patch.Roles); err != nil {
			return User{}, err
		}
	}
	return findUser(ctx, tx, scope.Where("id = ?", id))
}

// ResetPasswordByEmail sets a new password on the user with the given
// email.
func (s *Users) ResetPasswordByEmail(ctx context.Context, email, password string) error {
	u, err := AdminUsers(s.db).Where("email = ?", normalizeEmail(email)).First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return apperr.NotFound("User not found for email: %s", email)
	}
	if err != nil {
		return fmt.Errorf("admin: find user: %w", err)
	}
	if err := ValidatePassword(password); err != nil {
		return apperr.Validation(err.Error())
	}
	_, err = s.UpdateByID(ctx, u.ID, UserPatch{Password: &password})
	return err
}

// isLastSuperAdmin reports whether u is the only holder of the super
// admin role.
func (s *Users) isLastSuperAdmin(ctx context.Context, db orm.Querier, u User) (bool, Role, error) {
	superAdmin, err := s.roles.superAdminWithUsersCount(ctx, db)
	if err != nil {
		return false, Role{}, err
	}
	return superAdmin.UsersCount == 1 && hasSuperAdminRole(u), superAdmin, nil
}

func hasSuperAdminRole(u User) bool {
	return slices.ContainsFunc(u.Roles, func(r Role) bool { return r.Code == SuperAdminCode })
}

// Exists reports whether a user matches every scope.
func (s *Users) Exists(ctx context.Context, scopes ...scope.Scope) (bool, error) {
	ok, err := AdminUsers(s.db).Scopes(scopes...).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("admin: exists: %w", err)
	}
	return ok, nil
}

// FindRegistrationInfo returns the invitation behind token, or nil when no
// user carries it.
func (s *Users) FindRegistrationInfo(ctx context.Context, token string) (*RegistrationInfo, error) {
	if token == "" {
		return nil, nil
	}
	u, err := AdminUsers(s.db).Where("registration_token = ?", token).First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admin: find registration: %w", err)
	}
	return &RegistrationInfo{Email: u.Email, Firstname: u.Firstname, Lastname: u.Lastname}, nil
}

// Register completes the invitation carrying r.RegistrationToken and
// activates the user.
func (s *Users) Register(ctx context.Context, r Registration) (User, error) {
	if r.RegistrationToken == "" {
		return User{}, apperr.BadRequest("Invalid registration info")
	}
	u, err := AdminUsers(s.db).Where("registration_token = ?", r.RegistrationToken).First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return User{}, apperr.BadRequest("Invalid registration info")
	}
	if err != nil {
		return User{}, fmt.Errorf("admin: find registration: %w", err)
	}
	return s.UpdateByID(ctx, u.ID, UserPatch{
		Password:               &r.Password,
		Firstname:              &r.Firstname,
		Lastname:               &r.Lastname,
		IsActive:               ptr(true),
		clearRegistrationToken: true,
	})
}

// FindOne returns the user with the given id and its roles.
func (s *Users) FindOne(ctx context.Context, id int64) (User, error) {
	return findUser(ctx, s.db, scope.Where("id = ?", id))
}

// FindByEmail returns the user with the given email and its roles.
func (s *Users) FindByEmail(ctx context.Context, email string) (User, error) {
	return findUser(ctx, s.db, scope.Where("email = ?", normalizeEmail(email)))
}

func findUser(ctx context.Context, db orm.Querier, where scope.Scope) (User, error) {
	u, err := AdminUsers(db).Scopes(where).Preload("Roles").First(ctx)
	if errors.Is(err, orm.ErrNotFound) {
		return User{}, apperr.Wrap(err, http.StatusNotFound, "user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("admin: find user: %w", err)
	}
	return u, nil
}

// FindPage returns a page of users with their roles. _q matches the
// names, username and email; other parameters filter and sort by column,
// accepting camelCase names.
func (s *Users) FindPage(ctx context.Context, pq restquery.PageQuery) (restquery.Page[User], error) {
	f, err := pq.Filters()
	if err != nil {
		return restquery.Page[User]{}, err
	}
	d := s.db.Dialect()
	where, err := restquery.WhereScopes(f, d, userResolver(d))
	if err != nil {
		return restquery.Page[User]{}, err
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		var likes []scope.Scope
		for _, col := range []string{"firstname", "lastname", "username", "email"} {
			likes = append(likes, scope.Where("LOWER("+d.QuoteIdent(col)+") LIKE ?", pattern))
		}
		where = append(where, scope.Or(likes...))
	}
	order, err := restquery.OrderScopes(f, userResolver(d))
	if err != nil {
		return restquery.Page[User]{}, err
	}

	total, err := AdminUsers(s.db).Scopes(where...).Count(ctx)
	if err != nil {
		return restquery.Page[User]{}, fmt.Errorf("admin: count users: %w", err)
	}
	if len(f.Sort) == 0 {
		order = append([]scope.Scope{scope.OrderBy("id ASC")}, order...)
	}
	users, err := AdminUsers(s.db).Scopes(where...).Scopes(order...).Preload("Roles").All(ctx)
	if err != nil {
		return restquery.Page[User]{}, fmt.Errorf("admin: find users: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return restquery.Page[User]{Results: users, Pagination: pq.Pagination(total)}, nil
}

var userFilterColumns = map[string]func(any) (any, error){
	"id":                coerceInt64,
	"firstname":         coerceString,
	"lastname":          coerceString,
	"username":          coerceString,
	"email":             coerceString,
	"is_active":         coerceBool,
	"blocked":           coerceBool,
	"prefered_language": coerceString,
	"created_at":        coerceTime,
	"updated_at":        coerceTime,
}

func userResolver(d orm.Dialect) restquery.Resolver {
	return func(name string) (restquery.Field, bool) {
		col := naming.CamelToSnake(name)
		coerce, ok := userFilterColumns[col]
		if !ok {
			return restquery.Field{}, false
		}
		return restquery.Field{Column: d.QuoteIdent(col), Coerce: coerce}, true
	}
}

func coerceInt64(v any) (any, error)  { return cast.ToInt64E(v) }
func coerceString(v any) (any, error) { return cast.ToStringE(v) }
func coerceBool(v any) (any, error)   { return cast.ToBoolE(v) }
func coerceTime(v any) (any, error)   { return cast.ToTimeE(v) }

// DeleteByID removes the user with the given id and returns it, or nil
// when it does not exist. The last super admin cannot be deleted.
func (s *Users) DeleteByID(ctx context.Context, id int64) (*User, error) {
	var deleted *User
	err := s.db.Transaction(ctx, func(tx *orm.Tx) error {
		u, err := findUser(ctx, tx, scope.Where("id = ?", id))
		if apperr.IsStatus(err, http.StatusNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if hasSuperAdminRole(u) {
			superAdmin, err := s.roles.superAdminWithUsersCount(ctx, tx)
			if err != nil {
				return err
			}
			if superAdmin.UsersCount == 1 {
				return errLastSuperAdmin
			}
		}
		if err := deleteUsers(ctx, tx, []int64{id}); err != nil {
			return err
		}
		deleted = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteByIDs removes the users with the given ids and returns those that
// existed. Deleting every super admin is refused.
func (s *Users) DeleteByIDs(ctx context.Context, ids []int64) ([]User, error) {
	var deleted []User
	err := s.db.Transaction(ctx, func(tx *orm.Tx) error {
		superAdmin, err := s.roles.superAdminWithUsersCount(ctx, tx)
		if err != nil {
			return err
		}
		n, err := adminUsersRoles(tx).
			Where(userRolesRoleCol+" = ?", superAdmin.ID).
			Scopes(scope.In(userRolesUserCol, ids)).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("admin: count super admins: %w", err)
		}
		if n > 0 && n == superAdmin.UsersCount {
			return errLastSuperAdmin
		}

		deleted, err = AdminUsers(tx).Scopes(scope.In("id", ids)).OrderBy("id").Preload("Roles").All(ctx)
		if err != nil {
			return fmt.Errorf("admin: find users: %w", err)
		}
		return deleteUsers(ctx, tx, ids)
	})
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []User{}
	}
	return deleted, nil
}

func deleteUsers(ctx context.Context, tx *orm.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := adminUsersRoles(tx).Scopes(scope.In(userRolesUserCol, ids)).Delete(ctx); err != nil {
		return fmt.Errorf("admin: unlink roles: %w", err)
	}
	if err := AdminUsers(tx).Scopes(scope.In("id", ids)).Delete(ctx); err != nil {
		return fmt.Errorf("admin: delete users: %w", err)
	}
	return nil
}

// usersWithoutRole selects the users with no row in the role link table.
func usersWithoutRole(db orm.Querier) *orm.Query[User] {
	return AdminUsers(db).
		LeftJoin("RoleLinks").
		Scopes(scope.IsNull(userRolesTable + "." + userRolesUserCol))
}

// CountUsersWithoutRole counts the users holding no role.
func (s *Users) CountUsersWithoutRole(ctx context.Context) (int64, error) {
	n, err := usersWithoutRole(s.db).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("admin: count users without role: %w", err)
	}
	return n, nil
}

// Count counts the users matching every scope.
func (s *Users) Count(ctx context.Context, scopes ...scope.Scope) (int64, error) {
	n, err := AdminUsers(s.db).Scopes(scopes...).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("admin: count users: %w", err)
	}
	return n, nil
}

// AssignARoleToAll gives roleID to every user holding no role.
func (s *Users) AssignARoleToAll(ctx context.Context, roleID int64) error {
	return s.db.Transaction(ctx, func(tx *orm.Tx) error {
		users, err := usersWithoutRole(tx).Select("admin_users.id").All(ctx)
		if err != nil {
			return fmt.Errorf("admin: find users without role: %w", err)
		}
		links := make([]*userRole, len(users))
		for i, u := range users {
			links[i] = &userRole{UserID: u.ID, RoleID: roleID}
		}
		if err := adminUsersRoles(tx).CreateAll(ctx, links); err != nil {
			return fmt.Errorf("admin: assign role %d: %w", roleID, err)
		}
		return nil
	})
}

// DisplayWarningIfUsersDontHaveRole logs a warning when some users hold
// no role.
func (s *Users) DisplayWarningIfUsersDontHaveRole(ctx context.Context) error {
	n, err := s.CountUsersWithoutRole(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		zerolog.Ctx(ctx).Warn().Int64("count", n).Msgf("Some users (%d) don't have any role.", n)
	}
	return nil
}

// BootstrapAdmin creates an active super admin when no user exists yet.
func (s *Users) BootstrapAdmin(ctx context.Context, email, password, firstname, lastname string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return errors.New("admin: bootstrap email and password are required")
	}
	if err := s.roles.EnsureDefaultRoles(ctx); err != nil {
		return err
	}
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	superAdmin, err := s.roles.GetSuperAdmin(ctx)
	if err != nil {
		return err
	}
	in := CreateUser{Email: email, Password: &password, IsActive: true, Roles: []int64{superAdmin.ID}}
	if firstname != "" {
		in.Firstname = &firstname
	}
	if lastname != "" {
		in.Lastname = &lastname
	}
	u, err := s.Create(ctx, in)
	if err != nil {
		return err
	}
	err = AdminUsers(s.db).Where("id = ?", u.ID).UpdateColumns(ctx, []string{"registration_token"}, []any{nil})
	if err != nil {
		return fmt.Errorf("admin: clear registration token: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("email", u.Email).Msg("bootstrap super admin created")
	return nil
}

// setRoles replaces the roles of a user. Every role must exist.
func setRoles(ctx context.Context, tx *orm.Tx, userID int64, roleIDs []int64) error {
	roleIDs = dedupe(roleIDs)
	if len(roleIDs) > 0 {
		n, err := AdminRoles(tx).Scopes(scope.In("id", roleIDs)).Count(ctx)
		if err != nil {
			return fmt.Errorf("admin: lookup roles: %w", err)
		}
		if n != int64(len(roleIDs)) {
			return apperr.Validation("Some roles do not exist")
		}
	}
	if err := adminUsersRoles(tx).Where(userRolesUserCol+" = ?", userID).Delete(ctx); err != nil {
		return fmt.Errorf("admin: unlink roles: %w", err)
	}
	links := make([]*userRole, len(roleIDs))
	for i, id := range roleIDs {
		links[i] = &userRole{UserID: userID, RoleID: id}
	}
	if err := adminUsersRoles(tx).CreateAll(ctx, links); err != nil {
		return fmt.Errorf("admin: link roles: %w", err)
	}
	return nil
}

func validateAndHash(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", apperr.Validation(err.Error())
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", apperr.Wrap(err, http.StatusBadRequest, "invalid password")
	}
	return hash, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
