package admin_test

import (
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mickamy/contentorm/internal/admin"
	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/internal/migrate"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/restquery"
)

const strongPassword = "Secret123"

func setup(t *testing.T) (*admin.Users, *admin.Roles) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "admin.db") + "?_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := orm.New(sqlDB, orm.SQLite)
	if err := migrate.Up(t.Context(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	roles := admin.NewRoles(db)
	if err := roles.EnsureDefaultRoles(t.Context()); err != nil {
		t.Fatalf("EnsureDefaultRoles: %v", err)
	}
	return admin.NewUsers(db, roles), roles
}

func superAdminID(t *testing.T, roles *admin.Roles) int64 {
	t.Helper()

	r, err := roles.GetSuperAdmin(t.Context())
	if err != nil {
		t.Fatalf("GetSuperAdmin: %v", err)
	}
	return r.ID
}

func roleID(t *testing.T, roles *admin.Roles, code string) int64 {
	t.Helper()

	list, err := roles.List(t.Context())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, r := range list {
		if r.Code == code {
			return r.ID
		}
	}
	t.Fatalf("role %s not found", code)
	return 0
}

func createUser(t *testing.T, users *admin.Users, email string, roleIDs ...int64) admin.User {
	t.Helper()

	pw := strongPassword
	u, err := users.Create(t.Context(), admin.CreateUser{Email: email, Password: &pw, IsActive: true, Roles: roleIDs})
	if err != nil {
		t.Fatalf("Create %s: %v", email, err)
	}
	return u
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		password string
		valid    bool
	}{
		{"Secret123", true},
		{"secret123", false},
		{"SECRET123", false},
		{"SecretABC", false},
		{"Se1", false},
		{"Aa1" + strings.Repeat("x", 70), false},
		{"Aa1" + strings.Repeat("x", 69), true},
	}
	for _, tt := range tests {
		err := admin.ValidatePassword(tt.password)
		if (err == nil) != tt.valid {
			t.Errorf("ValidatePassword(%q) = %v, want valid=%v", tt.password, err, tt.valid)
		}
		if err != nil && !errors.Is(err, admin.ErrInvalidPassword) {
			t.Errorf("err = %v, want ErrInvalidPassword", err)
		}
	}
}

func TestEnsureDefaultRoles(t *testing.T) {
	t.Parallel()

	_, roles := setup(t)
	if err := roles.EnsureDefaultRoles(t.Context()); err != nil {
		t.Fatalf("second EnsureDefaultRoles: %v", err)
	}
	list, err := roles.List(t.Context())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var codes []string
	for _, r := range list {
		codes = append(codes, r.Code)
	}
	if got := strings.Join(codes, ","); got != "super-admin,editor,author" {
		t.Errorf("codes = %s", got)
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	editor := roleID(t, roles, admin.EditorCode)

	u := createUser(t, users, "  Ann@Example.com ", editor)
	if u.Email != "ann@example.com" {
		t.Errorf("Email = %s", u.Email)
	}
	if u.RegistrationToken == nil || *u.RegistrationToken == "" {
		t.Error("registration token not set")
	}
	if u.Password == nil || *u.Password == strongPassword || !admin.CheckPassword(u, strongPassword) {
		t.Error("password not hashed")
	}
	if len(u.Roles) != 1 || u.Roles[0].Code != admin.EditorCode {
		t.Errorf("Roles = %+v", u.Roles)
	}

	pw := strongPassword
	_, err := users.Create(t.Context(), admin.CreateUser{Email: "ann@example.com", Password: &pw})
	if !apperr.IsStatus(err, http.StatusBadRequest) || !strings.Contains(err.Error(), "Email already taken") {
		t.Errorf("err = %v, want email taken", err)
	}

	weak := "weak"
	_, err = users.Create(t.Context(), admin.CreateUser{Email: "bob@example.com", Password: &weak})
	if !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want 400 for weak password", err)
	}

	_, err = users.Create(t.Context(), admin.CreateUser{Email: "eve@example.com", Roles: []int64{999}})
	if !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want 400 for unknown role", err)
	}
	if ok, _ := users.Exists(t.Context()); !ok {
		t.Error("Exists = false")
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	u := createUser(t, users, "ann@example.com", superAdminID(t, roles))

	s := users.Sanitize(u)
	if s.Email != "ann@example.com" || len(s.Roles) != 1 || s.Roles[0].Code != admin.SuperAdminCode {
		t.Errorf("Sanitize = %+v", s)
	}
}

func TestUpdateByIDProtectsLastSuperAdmin(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	ctx := t.Context()
	super := superAdminID(t, roles)
	editor := roleID(t, roles, admin.EditorCode)

	ann := createUser(t, users, "ann@example.com", super)

	_, err := users.UpdateByID(ctx, ann.ID, admin.UserPatch{Roles: []int64{editor}})
	if !apperr.IsStatus(err, http.StatusBadRequest) || !strings.Contains(err.Error(), "at least one user with super admin role") {
		t.Errorf("err = %v, want last super admin error", err)
	}

	inactive := false
	_, err = users.UpdateByID(ctx, ann.ID, admin.UserPatch{IsActive: &inactive})
	if !apperr.IsStatus(err, http.StatusBadRequest) || !strings.Contains(err.Error(), "at least one active user") {
		t.Errorf("err = %v, want last active super admin error", err)
	}

	// a second super admin lifts the restriction
	createUser(t, users, "bob@example.com", super)
	updated, err := users.UpdateByID(ctx, ann.ID, admin.UserPatch{Roles: []int64{editor}, IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if updated.IsActive || len(updated.Roles) != 1 || updated.Roles[0].ID != editor {
		t.Errorf("updated = %+v", updated)
	}

	r, err := roles.GetSuperAdminWithUsersCount(ctx)
	if err != nil {
		t.Fatalf("GetSuperAdminWithUsersCount: %v", err)
	}
	if r.UsersCount != 1 {
		t.Errorf("UsersCount = %d, want 1", r.UsersCount)
	}
}

func TestUpdateByID(t *testing.T) {
	t.Parallel()

	users, _ := setup(t)
	ctx := t.Context()
	ann := createUser(t, users, "ann@example.com")
	bob := createUser(t, users, "bob@example.com")

	first, pw := "Ann", "NewSecret9"
	updated, err := users.UpdateByID(ctx, ann.ID, admin.UserPatch{Firstname: &first, Password: &pw})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if updated.Firstname == nil || *updated.Firstname != "Ann" || !admin.CheckPassword(updated, pw) {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := users.UpdateByID(ctx, ann.ID, admin.UserPatch{Email: &bob.Email}); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want 400 for a taken email", err)
	}
	if _, err := users.UpdateByID(ctx, 999, admin.UserPatch{Firstname: &first}); !apperr.IsStatus(err, http.StatusNotFound) {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestResetPasswordByEmail(t *testing.T) {
	t.Parallel()

	users, _ := setup(t)
	ctx := t.Context()
	createUser(t, users, "ann@example.com")

	if err := users.ResetPasswordByEmail(ctx, "nobody@example.com", "Secret123"); err == nil ||
		!strings.Contains(err.Error(), "User not found for email: nobody@example.com") {
		t.Errorf("err = %v", err)
	}
	if err := users.ResetPasswordByEmail(ctx, "ann@example.com", "short"); err == nil ||
		!strings.Contains(err.Error(), "Invalid password") {
		t.Errorf("err = %v", err)
	}
	if err := users.ResetPasswordByEmail(ctx, "ANN@example.com", "Another42"); err != nil {
		t.Fatalf("ResetPasswordByEmail: %v", err)
	}
	u, err := users.FindByEmail(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if !admin.CheckPassword(u, "Another42") {
		t.Error("password not reset")
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	users, _ := setup(t)
	ctx := t.Context()
	first := "Ann"
	invited, err := users.Create(ctx, admin.CreateUser{Email: "ann@example.com", Firstname: &first})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	token := *invited.RegistrationToken

	info, err := users.FindRegistrationInfo(ctx, token)
	if err != nil {
		t.Fatalf("FindRegistrationInfo: %v", err)
	}
	if info == nil || info.Email != "ann@example.com" || *info.Firstname != "Ann" {
		t.Errorf("info = %+v", info)
	}
	if info, _ := users.FindRegistrationInfo(ctx, "nope"); info != nil {
		t.Errorf("info = %+v, want nil", info)
	}

	registered, err := users.Register(ctx, admin.Registration{
		RegistrationToken: token, Firstname: "Annie", Lastname: "Lee", Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !registered.IsActive || registered.RegistrationToken != nil || *registered.Lastname != "Lee" {
		t.Errorf("registered = %+v", registered)
	}

	_, err = users.Register(ctx, admin.Registration{RegistrationToken: token, Password: strongPassword})
	if !apperr.IsStatus(err, http.StatusBadRequest) || !strings.Contains(err.Error(), "Invalid registration info") {
		t.Errorf("err = %v, want invalid registration info", err)
	}
}

func TestFindPage(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	editor := roleID(t, roles, admin.EditorCode)
	for _, email := range []string{"ann@example.com", "bob@example.com", "carl@other.org", "dana@example.com"} {
		createUser(t, users, email, editor)
	}

	page, err := users.FindPage(t.Context(), restquery.PageQuery{
		Page:     1,
		PageSize: 2,
		Params:   restquery.Params{"_q": "EXAMPLE", "_sort": "email:DESC"},
	})
	if err != nil {
		t.Fatalf("FindPage: %v", err)
	}
	want := restquery.Pagination{Page: 1, PageSize: 2, PageCount: 2, Total: 3}
	if page.Pagination != want {
		t.Errorf("Pagination = %+v, want %+v", page.Pagination, want)
	}
	if len(page.Results) != 2 || page.Results[0].Email != "dana@example.com" || len(page.Results[0].Roles) != 1 {
		t.Errorf("Results = %+v", page.Results)
	}

	page, err = users.FindPage(t.Context(), restquery.PageQuery{Params: restquery.Params{"isActive": "true", "email_contains": "other"}})
	if err != nil {
		t.Fatalf("FindPage: %v", err)
	}
	if page.Pagination.Total != 1 || page.Results[0].Email != "carl@other.org" {
		t.Errorf("page = %+v", page)
	}

	if _, err := users.FindPage(t.Context(), restquery.PageQuery{Params: restquery.Params{"password": "x"}}); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want 400 for filtering on password", err)
	}
}

func TestDeleteByID(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	ctx := t.Context()
	super := superAdminID(t, roles)
	ann := createUser(t, users, "ann@example.com", super)
	bob := createUser(t, users, "bob@example.com")

	if _, err := users.DeleteByID(ctx, ann.ID); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want last super admin error", err)
	}

	deleted, err := users.DeleteByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if deleted == nil || deleted.Email != "bob@example.com" {
		t.Errorf("deleted = %+v", deleted)
	}
	missing, err := users.DeleteByID(ctx, bob.ID)
	if err != nil || missing != nil {
		t.Errorf("DeleteByID(missing) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestDeleteByIDs(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	ctx := t.Context()
	super := superAdminID(t, roles)
	ann := createUser(t, users, "ann@example.com", super)
	bob := createUser(t, users, "bob@example.com", super)
	carl := createUser(t, users, "carl@example.com")

	if _, err := users.DeleteByIDs(ctx, []int64{ann.ID, bob.ID}); !apperr.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("err = %v, want last super admin error", err)
	}

	deleted, err := users.DeleteByIDs(ctx, []int64{bob.ID, carl.ID, 999})
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("deleted = %+v, want 2 users", deleted)
	}
	n, err := users.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestUsersWithoutRole(t *testing.T) {
	t.Parallel()

	users, roles := setup(t)
	ctx := t.Context()
	author := roleID(t, roles, admin.AuthorCode)
	createUser(t, users, "ann@example.com", author)
	createUser(t, users, "bob@example.com")
	createUser(t, users, "carl@example.com")

	n, err := users.CountUsersWithoutRole(ctx)
	if err != nil {
		t.Fatalf("CountUsersWithoutRole: %v", err)
	}
	if n != 2 {
		t.Errorf("CountUsersWithoutRole = %d, want 2", n)
	}
	if err := users.DisplayWarningIfUsersDontHaveRole(ctx); err != nil {
		t.Fatalf("DisplayWarningIfUsersDontHaveRole: %v", err)
	}

	if err := users.AssignARoleToAll(ctx, author); err != nil {
		t.Fatalf("AssignARoleToAll: %v", err)
	}
	if n, _ := users.CountUsersWithoutRole(ctx); n != 0 {
		t.Errorf("CountUsersWithoutRole = %d after AssignARoleToAll, want 0", n)
	}
	list, err := roles.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, r := range list {
		if r.Code == admin.AuthorCode && r.UsersCount != 3 {
			t.Errorf("author UsersCount = %d, want 3", r.UsersCount)
		}
	}
}

func TestBootstrapAdmin(t *testing.T) {
	t.Parallel()

	users, _ := setup(t)
	ctx := t.Context()

	if err := users.BootstrapAdmin(ctx, "root@example.com", strongPassword, "Root", ""); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	// existing users make it a no-op
	if err := users.BootstrapAdmin(ctx, "other@example.com", strongPassword, "", ""); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}

	u, err := users.FindByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if !u.IsActive || u.RegistrationToken != nil || len(u.Roles) != 1 || u.Roles[0].Code != admin.SuperAdminCode {
		t.Errorf("bootstrap admin = %+v", u)
	}
	if _, err := users.FindByEmail(ctx, "other@example.com"); !apperr.IsStatus(err, http.StatusNotFound) {
		t.Errorf("err = %v, want 404", err)
	}
}
