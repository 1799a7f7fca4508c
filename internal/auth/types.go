package auth

import "time"

// User is an account holder. Every user carries exactly one role; direct
// permission grants outside that role live in user_permissions rows.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	RoleID      string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Role groups permissions into a named baseline. The ADMIN role is
// system-protected and cannot be deleted.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Permission is a named capability such as "users:edit". The catalog is
// immutable at runtime; rows are created by seeding.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Session is an opaque, renewable proof of authentication. The id itself is
// the token carried in the session cookie.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// ProviderKey links an external identity (today: an email address under the
// "email" provider) to a user.
type ProviderKey struct {
	ID             string
	ProviderID     string
	ProviderUserID string
	UserID         string
}

// PasswordCredential stores the password digest for a user, one-to-one. The
// digest is empty for accounts without a password credential.
type PasswordCredential struct {
	ID             string
	UserID         string
	HashedPassword string
}

// UserDetail is a user joined with its role and the two permission maps the
// admin UI renders separately to show the source of each grant.
type UserDetail struct {
	User
	Role            *Role           `json:"role"`
	RolePermissions map[string]bool `json:"rolePermissions"`
	UserPermissions map[string]bool `json:"userPermissions"`
}

const (
	// RoleAdmin is the protected administrative role.
	RoleAdmin = "ADMIN"
	// RoleMember is the default role assigned on sign-up.
	RoleMember = "MEMBER"

	// ProviderEmail identifies the email+password identity provider.
	ProviderEmail = "email"
)
