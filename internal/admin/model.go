package admin

import (
	"context"
	"database/sql"
	"time"

	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/scope"
)

// User is an administrator of the back office.
type User struct {
	ID                 int64     `json:"id"`
	Firstname          *string   `json:"firstname"`
	Lastname           *string   `json:"lastname"`
	Username           *string   `json:"username"`
	Email              string    `json:"email"`
	Password           *string   `json:"password,omitempty"`
	ResetPasswordToken *string   `json:"resetPasswordToken,omitempty"`
	RegistrationToken  *string   `json:"registrationToken"`
	IsActive           bool      `json:"isActive"`
	Blocked            bool      `json:"blocked"`
	PreferedLanguage   *string   `json:"preferedLanguage"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Roles              []Role    `json:"roles" db:"-"`
}

func (User) TableName() string { return "admin_users" }

// Role groups administrators.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UsersCount  int64     `json:"usersCount" db:"-"`
}

func (Role) TableName() string { return "admin_roles" }

// userRole is a row of the admin_users_roles join table.
type userRole struct {
	ID     int64
	UserID int64
	RoleID int64
}

func (userRole) TableName() string { return "admin_users_roles" }

const (
	userRolesTable   = "admin_users_roles"
	userRolesUserCol = "user_id"
	userRolesRoleCol = "role_id"
)

// AdminUsers returns a new Query for the admin_users table.
func AdminUsers(db orm.Querier) *orm.Query[User] {
	q := orm.NewQuery[User](
		db, orm.ResolveTableName[User]("admin_users"), adminUsersColumns, "id",
		scanUser, userColumnValuePairs, setUserPK,
	)
	q.RegisterPreloader("Roles", preloadUserRoles)
	q.RegisterJoin("RoleLinks", orm.JoinConfig{
		TargetTable:  userRolesTable,
		TargetColumn: userRolesUserCol,
		SourceTable:  "admin_users",
		SourceColumn: "id",
	})
	return q
}

var adminUsersColumns = []string{
	"id", "firstname", "lastname", "username", "email", "password", "reset_password_token",
	"registration_token", "is_active", "blocked", "prefered_language", "created_at", "updated_at",
}

func scanUser(rows *sql.Rows) (User, error) {
	cols, _ := rows.Columns()
	var v User
	dest := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case "id":
			dest[i] = &v.ID
		case "firstname":
			dest[i] = &v.Firstname
		case "lastname":
			dest[i] = &v.Lastname
		case "username":
			dest[i] = &v.Username
		case "email":
			dest[i] = &v.Email
		case "password":
			dest[i] = &v.Password
		case "reset_password_token":
			dest[i] = &v.ResetPasswordToken
		case "registration_token":
			dest[i] = &v.RegistrationToken
		case "is_active":
			dest[i] = &v.IsActive
		case "blocked":
			dest[i] = &v.Blocked
		case "prefered_language":
			dest[i] = &v.PreferedLanguage
		case "created_at":
			dest[i] = &v.CreatedAt
		case "updated_at":
			dest[i] = &v.UpdatedAt
		default:
			dest[i] = new(any)
		}
	}
	err := rows.Scan(dest...)
	return v, err
}

func userColumnValuePairs(v *User, includesPK bool) ([]string, []any) {
	values := []any{
		v.Firstname, v.Lastname, v.Username, v.Email, v.Password, v.ResetPasswordToken,
		v.RegistrationToken, v.IsActive, v.Blocked, v.PreferedLanguage, v.CreatedAt, v.UpdatedAt,
	}
	if includesPK {
		return adminUsersColumns, append([]any{v.ID}, values...)
	}
	return adminUsersColumns[1:], values
}

func setUserPK(v *User, id int64) {
	v.ID = id
}

func preloadUserRoles(ctx context.Context, db orm.Querier, results []User) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]int64, len(results))
	for i := range results {
		ids[i] = results[i].ID
	}
	pairs, err := orm.QueryJoinTable[int64, int64](ctx, db, userRolesTable, userRolesUserCol, userRolesRoleCol, ids)
	if err != nil {
		return err
	}
	targetIDs := orm.UniqueTargets(pairs)
	related, err := AdminRoles(db).Scopes(scope.In("id", targetIDs)).OrderBy("id").All(ctx)
	if err != nil {
		return err
	}
	byPK := make(map[int64]Role)
	for _, r := range related {
		byPK[r.ID] = r
	}
	grouped := orm.GroupBySource(pairs)
	for i := range results {
		tIDs := grouped[results[i].ID]
		items := make([]Role, 0, len(tIDs))
		for _, tid := range tIDs {
			if v, ok := byPK[tid]; ok {
				items = append(items, v)
			}
		}
		results[i].Roles = items
	}
	return nil
}

// AdminRoles returns a new Query for the admin_roles table.
func AdminRoles(db orm.Querier) *orm.Query[Role] {
	return orm.NewQuery[Role](
		db, orm.ResolveTableName[Role]("admin_roles"), adminRolesColumns, "id",
		scanRole, roleColumnValuePairs, setRolePK,
	)
}

var adminRolesColumns = []string{"id", "name", "code", "description", "created_at", "updated_at"}

func scanRole(rows *sql.Rows) (Role, error) {
	cols, _ := rows.Columns()
	var v Role
	dest := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case "id":
			dest[i] = &v.ID
		case "name":
			dest[i] = &v.Name
		case "code":
			dest[i] = &v.Code
		case "description":
			dest[i] = &v.Description
		case "created_at":
			dest[i] = &v.CreatedAt
		case "updated_at":
			dest[i] = &v.UpdatedAt
		default:
			dest[i] = new(any)
		}
	}
	err := rows.Scan(dest...)
	return v, err
}

func roleColumnValuePairs(v *Role, includesPK bool) ([]string, []any) {
	if includesPK {
		return []string{"id", "name", "code", "description", "created_at", "updated_at"},
			[]any{v.ID, v.Name, v.Code, v.Description, v.CreatedAt, v.UpdatedAt}
	}
	return []string{"name", "code", "description", "created_at", "updated_at"},
		[]any{v.Name, v.Code, v.Description, v.CreatedAt, v.UpdatedAt}
}

func setRolePK(v *Role, id int64) {
	v.ID = id
}

// adminUsersRoles returns a new Query for the admin_users_roles table.
func adminUsersRoles(db orm.Querier) *orm.Query[userRole] {
	return orm.NewQuery[userRole](
		db, orm.ResolveTableName[userRole](userRolesTable), adminUsersRolesColumns, "id",
		scanUserRole, userRoleColumnValuePairs, setUserRolePK,
	)
}

var adminUsersRolesColumns = []string{"id", "user_id", "role_id"}

func scanUserRole(rows *sql.Rows) (userRole, error) {
	cols, _ := rows.Columns()
	var v userRole
	dest := make([]any, len(cols))
	for i, col := range cols {
		switch col {
		case "id":
			dest[i] = &v.ID
		case "user_id":
			dest[i] = &v.UserID
		case "role_id":
			dest[i] = &v.RoleID
		default:
			dest[i] = new(any)
		}
	}
	err := rows.Scan(dest...)
	return v, err
}

func userRoleColumnValuePairs(v *userRole, includesPK bool) ([]string, []any) {
	if includesPK {
		return []string{"id", "user_id", "role_id"}, []any{v.ID, v.UserID, v.RoleID}
	}
	return []string{"user_id", "role_id"}, []any{v.UserID, v.RoleID}
}

func setUserRolePK(v *userRole, id int64) {
	v.ID = id
}
