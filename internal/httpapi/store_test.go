package httpapi

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"rolegate.org/internal/auth"
)

// memStore is an in-memory auth.Store used to exercise the HTTP surface
// without a database. It is seeded with the same roles and permission
// catalog the SQL seeds install.
type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*auth.User
	roles     map[string]*auth.Role
	perms     []auth.Permission
	rolePerm  map[string]map[string]bool // role id -> permission names
	userPerm  map[string]map[string]bool // user id -> permission names
	sessions  map[string]auth.Session
	passwords map[string]auth.PasswordCredential // by user id
	keys      map[string]auth.ProviderKey        // provider id + "/" + provider user id
}

func newMemStore() *memStore {
	now := time.Now()
	s := &memStore{
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*auth.Role),
		rolePerm:  make(map[string]map[string]bool),
		userPerm:  make(map[string]map[string]bool),
		sessions:  make(map[string]auth.Session),
		passwords: make(map[string]auth.PasswordCredential),
		keys:      make(map[string]auth.ProviderKey),
	}
	s.roles["role_admin"] = &auth.Role{ID: "role_admin", Name: auth.RoleAdmin, CreatedAt: now, UpdatedAt: now}
	s.roles["role_member"] = &auth.Role{ID: "role_member", Name: auth.RoleMember, CreatedAt: now, UpdatedAt: now}
	for i, name := range []string{"dashboard:read", "users:read", "users:edit", "users:delete"} {
		s.perms = append(s.perms, auth.Permission{
			ID: "perm_" + strconv.Itoa(i), Name: name, CreatedAt: now, UpdatedAt: now,
		})
	}
	s.rolePerm["role_admin"] = map[string]bool{
		"dashboard:read": true, "users:read": true, "users:edit": true, "users:delete": true,
	}
	s.rolePerm["role_member"] = map[string]bool{"dashboard:read": true}
	return s
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// addUser seeds an account with a password credential and provider key.
func (s *memStore) addUser(email, password, roleID string) *auth.User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	u := &auth.User{ID: s.nextID("user"), Email: email, RoleID: roleID, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	s.passwords[u.ID] = auth.PasswordCredential{ID: s.nextID("pw"), UserID: u.ID, HashedPassword: hash}
	s.keys[auth.ProviderEmail+"/"+email] = auth.ProviderKey{
		ID: s.nextID("key"), ProviderID: auth.ProviderEmail, ProviderUserID: email, UserID: u.ID,
	}
	return u
}

func (s *memStore) grant(userID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userPerm[userID] == nil {
		s.userPerm[userID] = make(map[string]bool)
	}
	s.userPerm[userID][name] = true
}

func (s *memStore) Users() auth.UserStore             { return memUsers{s} }
func (s *memStore) Roles() auth.RoleStore             { return memRoles{s} }
func (s *memStore) Permissions() auth.PermissionStore { return memPerms{s} }
func (s *memStore) Sessions() auth.SessionStore       { return memSessions{s} }
func (s *memStore) Credentials() auth.CredentialStore { return memCreds{s} }

type memUsers struct{ s *memStore }

func (m memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, auth.ErrNotFound
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m memUsers) List(_ context.Context, filter auth.ListUsersFilter) ([]auth.UserWithRole, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []auth.UserWithRole
	for _, u := range m.s.users {
		if filter.NamePrefix != "" && !strings.HasPrefix(u.DisplayName, filter.NamePrefix) {
			continue
		}
		role := m.s.roles[u.RoleID]
		if len(filter.RoleNames) > 0 {
			match := false
			for _, name := range filter.RoleNames {
				if role != nil && role.Name == name {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		item := auth.UserWithRole{User: *u}
		if role != nil {
			clone := *role
			item.Role = &clone
		}
		all = append(all, item)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m memUsers) UpdateDisplayName(_ context.Context, userID, displayName string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.DisplayName = displayName
	u.UpdatedAt = time.Now()
	return nil
}

func (m memUsers) CreateWithCredentials(_ context.Context, u *auth.User, passwordHash, providerID, providerUserID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u.ID == "" {
		u.ID = m.s.nextID("user")
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	clone := *u
	m.s.users[u.ID] = &clone
	m.s.passwords[u.ID] = auth.PasswordCredential{ID: m.s.nextID("pw"), UserID: u.ID, HashedPassword: passwordHash}
	m.s.keys[providerID+"/"+providerUserID] = auth.ProviderKey{
		ID: m.s.nextID("key"), ProviderID: providerID, ProviderUserID: providerUserID, UserID: u.ID,
	}
	return nil
}

func (m memUsers) ReconcileRoleAndPermissions(_ context.Context, userID, roleID string, plan auth.ReconcilePlanFunc) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RoleID = roleID
	u.UpdatedAt = time.Now()

	var current []string
	for name := range m.s.userPerm[userID] {
		current = append(current, name)
	}
	toAdd, toRemove := plan(current)
	if m.s.userPerm[userID] == nil {
		m.s.userPerm[userID] = make(map[string]bool)
	}
	for _, name := range toAdd {
		m.s.userPerm[userID][name] = true
	}
	for _, name := range toRemove {
		delete(m.s.userPerm[userID], name)
	}
	return nil
}

type memRoles struct{ s *memStore }

func (m memRoles) Create(_ context.Context, role *auth.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if role.ID == "" {
		role.ID = m.s.nextID("role")
	}
	now := time.Now()
	role.CreatedAt, role.UpdatedAt = now, now
	clone := *role
	m.s.roles[role.ID] = &clone
	return nil
}

func (m memRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r, ok := m.s.roles[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, auth.ErrNotFound
}

func (m memRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.roles {
		if r.Name == name {
			clone := *r
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m memRoles) List(_ context.Context) ([]*auth.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var roles []*auth.Role
	for _, r := range m.s.roles {
		clone := *r
		roles = append(roles, &clone)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (m memRoles) Update(_ context.Context, role *auth.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[role.ID]; !ok {
		return auth.ErrNotFound
	}
	role.UpdatedAt = time.Now()
	clone := *role
	m.s.roles[role.ID] = &clone
	return nil
}

func (m memRoles) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	for _, u := range m.s.users {
		if u.RoleID == id {
			return fmt.Errorf("%w: role is still assigned to users", auth.ErrConflict)
		}
	}
	delete(m.s.roles, id)
	delete(m.s.rolePerm, id)
	return nil
}

type memPerms struct{ s *memStore }

func (m memPerms) List(_ context.Context) ([]auth.Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]auth.Permission(nil), m.s.perms...), nil
}

func (m memPerms) NamesForRole(_ context.Context, roleID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return sortedNames(m.s.rolePerm[roleID]), nil
}

func (m memPerms) NamesForUser(_ context.Context, userID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return sortedNames(m.s.userPerm[userID]), nil
}

func (m memPerms) NamesForUserRole(_ context.Context, userID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok {
		return nil, nil
	}
	return sortedNames(m.s.rolePerm[u.RoleID]), nil
}

func (m memPerms) SetForRole(_ context.Context, roleID string, names []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	known := make(map[string]bool, len(m.s.perms))
	for _, p := range m.s.perms {
		known[p.Name] = true
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		if known[name] {
			set[name] = true
		}
	}
	m.s.rolePerm[roleID] = set
	return nil
}

func sortedNames(set map[string]bool) []string {
	var names []string
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type memSessions struct{ s *memStore }

func (m memSessions) Create(_ context.Context, sess *auth.Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.sessions[sess.ID] = *sess
	return nil
}

func (m memSessions) Find(_ context.Context, id string) (*auth.Session, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if sess, ok := m.s.sessions[id]; ok {
		return &sess, nil
	}
	return nil, auth.ErrNotFound
}

func (m memSessions) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.sessions, id)
	return nil
}

func (m memSessions) Replace(_ context.Context, oldID string, next *auth.Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.sessions, oldID)
	m.s.sessions[next.ID] = *next
	return nil
}

type memCreds struct{ s *memStore }

func (m memCreds) PasswordByUser(_ context.Context, userID string) (*auth.PasswordCredential, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if cred, ok := m.s.passwords[userID]; ok {
		return &cred, nil
	}
	return nil, auth.ErrNotFound
}

func (m memCreds) ProviderKey(_ context.Context, providerID, providerUserID string) (*auth.ProviderKey, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if key, ok := m.s.keys[providerID+"/"+providerUserID]; ok {
		return &key, nil
	}
	return nil, auth.ErrNotFound
}
