package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Sessions() SessionStore
	Credentials() CredentialStore
}

// ListUsersFilter narrows and pages the user listing.
type ListUsersFilter struct {
	NamePrefix string
	RoleNames  []string
	Page       int
	PerPage    int
}

// UserWithRole is a user row joined with its role for listings.
type UserWithRole struct {
	User
	Role *Role `json:"role"`
}

// ReconcilePlanFunc computes the direct-grant changes for a user given the
// grants currently stored. The store calls it inside the reconciliation
// transaction so the read snapshot and the writes cannot interleave with a
// concurrent reconfiguration.
type ReconcilePlanFunc func(current []string) (toAdd, toRemove []string)

// UserStore manages user accounts.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter ListUsersFilter) ([]UserWithRole, int, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) error

	// CreateWithCredentials inserts the user, its password credential and
	// its provider key in one transaction.
	CreateWithCredentials(ctx context.Context, u *User, passwordHash, providerID, providerUserID string) error

	// ReconcileRoleAndPermissions updates the user's role and applies the
	// grant changes returned by plan, all in one transaction.
	ReconcileRoleAndPermissions(ctx context.Context, userID, roleID string, plan ReconcilePlanFunc) error
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error

	// Delete removes the role and its role_permissions rows in one
	// transaction. Roles still referenced by users yield ErrConflict.
	Delete(ctx context.Context, id string) error
}

// PermissionStore reads the permission catalog and the two grant paths.
type PermissionStore interface {
	List(ctx context.Context) ([]Permission, error)
	NamesForRole(ctx context.Context, roleID string) ([]string, error)
	// NamesForUser returns the user's direct grants.
	NamesForUser(ctx context.Context, userID string) ([]string, error)
	// NamesForUserRole returns grants reached through the user's role.
	NamesForUserRole(ctx context.Context, userID string) ([]string, error)
	// SetForRole replaces the role's grant set; unknown names are ignored.
	SetForRole(ctx context.Context, roleID string, names []string) error
}

// SessionStore manages session rows. The session id is the opaque token.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Delete is idempotent; removing an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Replace atomically swaps an old session row for its rotated successor.
	Replace(ctx context.Context, oldID string, next *Session) error
}

// CredentialStore reads password digests and provider identity keys.
type CredentialStore interface {
	PasswordByUser(ctx context.Context, userID string) (*PasswordCredential, error)
	ProviderKey(ctx context.Context, providerID, providerUserID string) (*ProviderKey, error)
}
