package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	selectUserRe = "select id, email, display_name, avatar_url, role_id, created_at, updated_at from users"
	selectRoleRe = "select id, name, description, created_at, updated_at from roles"
)

func roleRows(id, name string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
		AddRow(id, name, "", now, now)
}

func TestSignUpCreatesMemberAccount(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectUserRe).WithArgs("new@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(selectRoleRe).WithArgs(RoleMember).
		WillReturnRows(roleRows("role_member", RoleMember, now))
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "new@example.com", "role_member").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_passwords").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_keys").
		WithArgs(sqlmock.AnyArg(), ProviderEmail, "new@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("insert into user_sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), now.Add(SessionTTL)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, sess, err := svc.SignUp(context.Background(), " New@Example.com ", "hunter2!")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email was not normalized: %q", user.Email)
	}
	if user.RoleID != "role_member" {
		t.Fatalf("unexpected role id %q", user.RoleID)
	}
	if sess.UserID != user.ID {
		t.Fatalf("session belongs to %q, want %q", sess.UserID, user.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectUserRe).WithArgs("dup@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at"}).
			AddRow("user-1", "dup@example.com", "", "", "role_member", now, now))

	_, _, err := svc.SignUp(context.Background(), "dup@example.com", "hunter2!")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSignUpValidatesInput(t *testing.T) {
	svc, _, done := newMockService(t, time.Now())
	defer done()

	for _, tc := range []struct{ email, password string }{
		{"", "pw"},
		{"not-an-email", "pw"},
		{"ok@example.com", ""},
	} {
		if _, _, err := svc.SignUp(context.Background(), tc.email, tc.password); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("SignUp(%q, %q): expected ErrInvalidInput, got %v", tc.email, tc.password, err)
		}
	}
}

// Every sign-in failure mode must surface the identical message so responses
// carry no account-enumeration signal.
func TestSignInFailuresAreUniform(t *testing.T) {
	now := time.Now()
	hash, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	t.Run("unknown email", func(t *testing.T) {
		svc, mock, done := newMockService(t, now)
		defer done()
		mock.ExpectQuery(selectUserRe).WithArgs("ghost@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, _, err := svc.SignIn(context.Background(), "ghost@example.com", "pw")
		if err == nil || err.Error() != errBadCredentials.Error() {
			t.Fatalf("expected generic credentials error, got %v", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, mock, done := newMockService(t, now)
		defer done()
		mock.ExpectQuery(selectUserRe).WithArgs("u@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at"}).
				AddRow("user-1", "u@example.com", "", "", "role_member", now, now))
		mock.ExpectQuery("select id, provider_id, provider_user_id, user_id from user_keys").
			WithArgs(ProviderEmail, "u@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "provider_user_id", "user_id"}).
				AddRow("key-1", ProviderEmail, "u@example.com", "user-1"))
		mock.ExpectQuery("select id, user_id, coalesce").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "hashed_password"}).
				AddRow("pw-1", "user-1", hash))
		_, _, err := svc.SignIn(context.Background(), "u@example.com", "wrong-password")
		if err == nil || err.Error() != errBadCredentials.Error() {
			t.Fatalf("expected generic credentials error, got %v", err)
		}
	})

	t.Run("missing password digest", func(t *testing.T) {
		svc, mock, done := newMockService(t, now)
		defer done()
		mock.ExpectQuery(selectUserRe).WithArgs("u@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at"}).
				AddRow("user-1", "u@example.com", "", "", "role_member", now, now))
		mock.ExpectQuery("select id, provider_id, provider_user_id, user_id from user_keys").
			WithArgs(ProviderEmail, "u@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "provider_user_id", "user_id"}).
				AddRow("key-1", ProviderEmail, "u@example.com", "user-1"))
		mock.ExpectQuery("select id, user_id, coalesce").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "hashed_password"}).
				AddRow("pw-1", "user-1", ""))
		_, _, err := svc.SignIn(context.Background(), "u@example.com", "anything")
		if err == nil || err.Error() != errBadCredentials.Error() {
			t.Fatalf("expected generic credentials error, got %v", err)
		}
	})
}

func TestSignInSuccess(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	hash, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	mock.ExpectQuery(selectUserRe).WithArgs("u@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at"}).
			AddRow("user-1", "u@example.com", "", "", "role_member", now, now))
	mock.ExpectQuery("select id, provider_id, provider_user_id, user_id from user_keys").
		WithArgs(ProviderEmail, "u@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "provider_user_id", "user_id"}).
			AddRow("key-1", ProviderEmail, "u@example.com", "user-1"))
	mock.ExpectQuery("select id, user_id, coalesce").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "hashed_password"}).
			AddRow("pw-1", "user-1", hash))
	mock.ExpectExec("insert into user_sessions").
		WithArgs(sqlmock.AnyArg(), "user-1", now.Add(SessionTTL)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, sess, err := svc.SignIn(context.Background(), "u@example.com", "correct-password")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.ID != "user-1" || sess.UserID != "user-1" {
		t.Fatalf("unexpected identities: user=%q session=%q", user.ID, sess.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// Promoting a member to admin with all permissions requested must sweep the
// now-redundant direct grants instead of duplicating them.
func TestApplyRoleAndPermissionsPromotion(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectUserRe).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at"}).
			AddRow("user-1", "u@example.com", "", "", "role_member", now, now))
	mock.ExpectQuery(selectRoleRe).WithArgs("role_admin").
		WillReturnRows(roleRows("role_admin", RoleAdmin, now))
	mock.ExpectQuery("select id, name, description, created_at, updated_at from permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow("p1", "dashboard:read", "", now, now).
			AddRow("p2", "users:read", "", now, now).
			AddRow("p3", "users:edit", "", now, now).
			AddRow("p4", "users:delete", "", now, now))
	mock.ExpectQuery("join role_permissions rp").WithArgs("role_admin").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("dashboard:read").AddRow("users:read").AddRow("users:edit").AddRow("users:delete"))

	mock.ExpectBegin()
	mock.ExpectExec("update users set role_id").
		WithArgs("user-1", "role_admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("join user_permissions up").WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("users:read").AddRow("users:edit"))
	mock.ExpectExec("delete from user_permissions").
		WithArgs("user-1", "users:edit,users:read").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	desired := map[string]bool{
		"dashboard:read": true,
		"users:read":     true,
		"users:edit":     true,
		"users:delete":   true,
	}
	if err := svc.ApplyRoleAndPermissions(context.Background(), "user-1", "role_admin", desired); err != nil {
		t.Fatalf("ApplyRoleAndPermissions: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyRoleAndPermissionsUnknownRole(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectUserRe).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at"}).
			AddRow("user-1", "u@example.com", "", "", "role_member", now, now))
	mock.ExpectQuery(selectRoleRe).WithArgs("role_ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := svc.ApplyRoleAndPermissions(context.Background(), "user-1", "role_ghost", nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteRoleProtectsAdmin(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectRoleRe).WithArgs("role_admin").
		WillReturnRows(roleRows("role_admin", RoleAdmin, now))

	err := svc.DeleteRole(context.Background(), "role_admin")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteRoleStillAssigned(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectRoleRe).WithArgs("role_staff").
		WillReturnRows(roleRows("role_staff", "STAFF", now))
	mock.ExpectBegin()
	mock.ExpectQuery("select count").WithArgs("role_staff").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := svc.DeleteRole(context.Background(), "role_staff")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateRoleNameCollision(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery(selectRoleRe).WithArgs("role_a").
		WillReturnRows(roleRows("role_a", "ALPHA", now))
	mock.ExpectQuery(selectRoleRe).WithArgs("BETA").
		WillReturnRows(roleRows("role_b", "BETA", now))

	_, err := svc.UpdateRole(context.Background(), "role_a", "BETA", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListUsersClampsPaging(t *testing.T) {
	now := time.Now()
	svc, mock, done := newMockService(t, now)
	defer done()

	mock.ExpectQuery("select count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("from users u").
		WithArgs(0, defaultPerPage).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "display_name", "avatar_url", "role_id", "created_at", "updated_at",
			"r_id", "r_name", "r_description", "r_created_at", "r_updated_at",
		}))

	_, total, err := svc.ListUsers(context.Background(), ListUsersFilter{Page: -4, PerPage: 10_000})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected empty total, got %d", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
