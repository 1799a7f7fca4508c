package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rolegate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Roles() RoleStore             { return &roleStore{db: s.db} }
func (s *PGStore) Permissions() PermissionStore { return &permissionStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore       { return &sessionStore{db: s.db} }
func (s *PGStore) Credentials() CredentialStore { return &credentialStore{db: s.db} }

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, display_name, avatar_url, role_id, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.RoleID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *userStore) List(ctx context.Context, filter ListUsersFilter) ([]UserWithRole, int, error) {
	where := []string{"true"}
	args := []any{}
	if filter.NamePrefix != "" {
		args = append(args, filter.NamePrefix+"%")
		where = append(where, fmt.Sprintf("u.display_name like $%d", len(args)))
	}
	if len(filter.RoleNames) > 0 {
		args = append(args, filter.RoleNames)
		where = append(where, fmt.Sprintf("r.name = any($%d)", len(args)))
	}
	cond := strings.Join(where, " and ")

	var total int
	countQuery := `select count(*) from users u left join roles r on r.id=u.role_id where ` + cond
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, (filter.Page-1)*filter.PerPage, filter.PerPage)
	query := fmt.Sprintf(`
		select u.id, u.email, u.display_name, u.avatar_url, u.role_id, u.created_at, u.updated_at,
		       r.id, r.name, r.description, r.created_at, r.updated_at
		from users u
		left join roles r on r.id=u.role_id
		where %s
		order by u.created_at desc
		offset $%d limit $%d`, cond, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []UserWithRole
	for rows.Next() {
		var (
			u UserWithRole
			r Role
			// the role join is nullable when a role was removed under us
			roleID, roleName, roleDesc   sql.NullString
			roleCreatedAt, roleUpdatedAt sql.NullTime
		)
		if err := rows.Scan(
			&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.RoleID, &u.CreatedAt, &u.UpdatedAt,
			&roleID, &roleName, &roleDesc, &roleCreatedAt, &roleUpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		if roleID.Valid {
			r = Role{
				ID:          roleID.String,
				Name:        roleName.String,
				Description: roleDesc.String,
				CreatedAt:   roleCreatedAt.Time,
				UpdatedAt:   roleUpdatedAt.Time,
			}
			u.Role = &r
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *userStore) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set display_name=$2, updated_at=now() where id=$1`, userID, displayName)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) CreateWithCredentials(ctx context.Context, u *User, passwordHash, providerID, providerUserID string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into users(id, email, role_id) values($1,$2,$3)`,
		u.ID, u.Email, u.RoleID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_passwords(id, user_id, hashed_password) values($1,$2,$3)`,
		ids.New(), u.ID, passwordHash,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_keys(id, provider_id, provider_user_id, user_id) values($1,$2,$3,$4)`,
		ids.New(), providerID, providerUserID, u.ID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *userStore) ReconcileRoleAndPermissions(ctx context.Context, userID, roleID string, plan ReconcilePlanFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update users set role_id=$2, updated_at=now() where id=$1`, userID, roleID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	rows, err := tx.QueryContext(ctx,
		`select p.name from permissions p
		 join user_permissions up on up.permission_id=p.id
		 where up.user_id=$1`, userID)
	if err != nil {
		return err
	}
	var current []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		current = append(current, name)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	toAdd, toRemove := plan(current)
	for _, name := range toAdd {
		if _, err := tx.ExecContext(ctx,
			`insert into user_permissions(id, user_id, permission_id)
			 select $1, $2, id from permissions where name=$3`,
			ids.New(), userID, name,
		); err != nil {
			return err
		}
	}
	if len(toRemove) > 0 {
		if _, err := tx.ExecContext(ctx,
			`delete from user_permissions up
			 using permissions p
			 where up.permission_id=p.id and up.user_id=$1 and p.name = any($2)`,
			userID, toRemove,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row *sql.Row) (*Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into roles(id, name, description) values($1,$2,$3)
		 returning created_at, updated_at`,
		role.ID, role.Name, role.Description,
	).Scan(&role.CreatedAt, &role.UpdatedAt)
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id=$1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where name=$1`, name))
}

func (s *roleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, role *Role) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set name=$2, description=$3, updated_at=now() where id=$1`,
		role.ID, role.Name, role.Description)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var assigned int
	if err := tx.QueryRowContext(ctx,
		`select count(*) from users where role_id=$1`, id).Scan(&assigned); err != nil {
		return err
	}
	if assigned > 0 {
		return fmt.Errorf("%w: role is still assigned to users", ErrConflict)
	}
	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at, updated_at from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) NamesForRole(ctx context.Context, roleID string) ([]string, error) {
	return s.names(ctx,
		`select p.name from permissions p
		 join role_permissions rp on rp.permission_id=p.id
		 where rp.role_id=$1`, roleID)
}

func (s *permissionStore) NamesForUser(ctx context.Context, userID string) ([]string, error) {
	return s.names(ctx,
		`select p.name from permissions p
		 join user_permissions up on up.permission_id=p.id
		 where up.user_id=$1`, userID)
}

func (s *permissionStore) NamesForUserRole(ctx context.Context, userID string) ([]string, error) {
	return s.names(ctx,
		`select p.name from permissions p
		 join role_permissions rp on rp.permission_id=p.id
		 join users u on u.role_id=rp.role_id
		 where u.id=$1`, userID)
}

func (s *permissionStore) names(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions(id, role_id, permission_id)
			 select $1, $2, id from permissions where name=$3`,
			ids.New(), roleID, name,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Session store ------------------------------------------------------------

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_sessions(id, user_id, expires_at) values($1,$2,$3)`,
		sess.ID, sess.UserID, sess.ExpiresAt)
	return err
}

func (s *sessionStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, expires_at from user_sessions where id=$1`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from user_sessions where id=$1`, id)
	return err
}

func (s *sessionStore) Replace(ctx context.Context, oldID string, next *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from user_sessions where id=$1`, oldID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_sessions(id, user_id, expires_at) values($1,$2,$3)`,
		next.ID, next.UserID, next.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Credential store ---------------------------------------------------------

type credentialStore struct{ db *sql.DB }

func (s *credentialStore) PasswordByUser(ctx context.Context, userID string) (*PasswordCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, coalesce(hashed_password,'') from user_passwords where user_id=$1`, userID)
	var cred PasswordCredential
	if err := row.Scan(&cred.ID, &cred.UserID, &cred.HashedPassword); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (s *credentialStore) ProviderKey(ctx context.Context, providerID, providerUserID string) (*ProviderKey, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, provider_id, provider_user_id, user_id from user_keys
		 where provider_id=$1 and provider_user_id=$2`, providerID, providerUserID)
	var key ProviderKey
	if err := row.Scan(&key.ID, &key.ProviderID, &key.ProviderUserID, &key.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}
