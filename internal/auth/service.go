package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Service implements the authentication and authorization core on top of a
// transactional Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// errBadCredentials is deliberately identical for every sign-in failure mode
// so responses carry no account-enumeration signal.
var errBadCredentials = fmt.Errorf("%w: incorrect email or password", ErrInvalidInput)

// SignUp registers a new email+password account with the default MEMBER role
// and opens a session for it. The user row, password credential and provider
// key are written in one transaction.
func (s *Service) SignUp(ctx context.Context, email, password string) (*User, Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, Session{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, Session{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, Session{}, fmt.Errorf("%w: user already exists with email", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, Session{}, err
	}

	role, err := s.store.Roles().FindByName(ctx, RoleMember)
	if err != nil {
		return nil, Session{}, fmt.Errorf("default role %s: %w", RoleMember, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, Session{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user := &User{Email: email, RoleID: role.ID}
	if err := s.store.Users().CreateWithCredentials(ctx, user, hash, ProviderEmail, email); err != nil {
		return nil, Session{}, err
	}

	sess, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, Session{}, err
	}
	return user, sess, nil
}

// SignIn authenticates an email+password pair and opens a session. Every
// failure mode (unknown email, missing provider key, missing digest, wrong
// password) surfaces the same generic error.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, Session{}, errBadCredentials
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, Session{}, errBadCredentials
	}
	if err != nil {
		return nil, Session{}, err
	}

	if _, err := s.store.Credentials().ProviderKey(ctx, ProviderEmail, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Session{}, errBadCredentials
		}
		return nil, Session{}, err
	}

	cred, err := s.store.Credentials().PasswordByUser(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, Session{}, errBadCredentials
	}
	if err != nil {
		return nil, Session{}, err
	}
	if cred.HashedPassword == "" {
		return nil, Session{}, errBadCredentials
	}
	if err := VerifyPassword(cred.HashedPassword, password); err != nil {
		return nil, Session{}, errBadCredentials
	}

	sess, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, Session{}, err
	}
	return user, sess, nil
}

// UserDetail loads a user with its role and the two permission maps kept
// separate so callers can tell grant sources apart.
func (s *Service) UserDetail(ctx context.Context, userID string) (*UserDetail, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}

	role, err := s.store.Roles().Find(ctx, user.RoleID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	perms := s.store.Permissions()
	viaRole, err := perms.NamesForUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	direct, err := perms.NamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserDetail{
		User:            *user,
		Role:            role,
		RolePermissions: mergePermissions(viaRole),
		UserPermissions: mergePermissions(direct),
	}, nil
}

// ListUsers returns a page of users joined with their roles plus the total
// row count for the filter.
func (s *Service) ListUsers(ctx context.Context, filter ListUsersFilter) ([]UserWithRole, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > maxPerPage {
		filter.PerPage = defaultPerPage
	}
	return s.store.Users().List(ctx, filter)
}

// UpdateDisplayName sets the display name on the caller's own profile.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	userID = strings.TrimSpace(userID)
	displayName = strings.TrimSpace(displayName)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if displayName == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if len(displayName) > 255 {
		return fmt.Errorf("%w: display name is too long", ErrInvalidInput)
	}
	return s.store.Users().UpdateDisplayName(ctx, userID, displayName)
}

// ApplyRoleAndPermissions atomically moves a user to a new role and
// reconciles direct grants against the desired permission map. Unknown
// permission names are dropped; names the new role already grants are never
// stored as direct grants, and existing direct grants the new role covers
// are removed. Re-applying the same desired state changes nothing.
func (s *Service) ApplyRoleAndPermissions(ctx context.Context, userID, roleID string, desired map[string]bool) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if roleID == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}

	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.Roles().Find(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: role does not exist", ErrInvalidInput)
		}
		return err
	}

	catalogPerms, err := s.store.Permissions().List(ctx)
	if err != nil {
		return err
	}
	catalog := make(map[string]struct{}, len(catalogPerms))
	for _, p := range catalogPerms {
		catalog[p.Name] = struct{}{}
	}
	rolePermNames, err := s.store.Permissions().NamesForRole(ctx, roleID)
	if err != nil {
		return err
	}
	rolePerms := nameSet(rolePermNames)

	return s.store.Users().ReconcileRoleAndPermissions(ctx, userID, roleID, func(current []string) ([]string, []string) {
		return grantDiff(desired, catalog, rolePerms, nameSet(current))
	})
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles().List(ctx)
}

// Role looks up a single role by id.
func (s *Service) Role(ctx context.Context, id string) (*Role, error) {
	return s.store.Roles().Find(ctx, id)
}

// CreateRole adds a role; names are unique.
func (s *Service) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := s.store.Roles().FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: role with name already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole renames or re-describes a role.
func (s *Service) UpdateRole(ctx context.Context, id, name, description string) (*Role, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := s.store.Roles().Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: role does not exist", ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}
	if other, err := s.store.Roles().FindByName(ctx, name); err == nil && other.ID != id {
		return nil, fmt.Errorf("%w: role with name already exists", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role.Name = name
	role.Description = strings.TrimSpace(description)
	if err := s.store.Roles().Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role and its permission rows. The ADMIN role is
// system-protected and refuses deletion.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	role, err := s.store.Roles().Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: role does not exist", ErrInvalidInput)
	}
	if err != nil {
		return err
	}
	if role.Name == RoleAdmin {
		return fmt.Errorf("%w: not authorized to delete %q role", ErrInvalidInput, RoleAdmin)
	}
	return s.store.Roles().Delete(ctx, id)
}

// RolePermissions returns the grant map of a single role.
func (s *Service) RolePermissions(ctx context.Context, roleID string) (map[string]bool, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if _, err := s.store.Roles().Find(ctx, roleID); err != nil {
		return nil, err
	}
	names, err := s.store.Permissions().NamesForRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return mergePermissions(names), nil
}

// SetRolePermissions replaces a role's grant set. Unknown permission names
// are ignored.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if _, err := s.store.Roles().Find(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: role does not exist", ErrInvalidInput)
		}
		return err
	}
	return s.store.Permissions().SetForRole(ctx, roleID, dedupeNames(names))
}

// ListPermissions returns the full permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions().List(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
