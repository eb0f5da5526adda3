/*
Package identity provides identities, roles, session tokens and the
access-bootstrap state machine.

ROLES:
  "" (unset) -> ADMIN | VIEWER. Terminal: once assigned, a role is never
  changed by this package. VIEWER < ADMIN for authorization checks.

ACCESS-BOOTSTRAP:
  At an identity's first successful authentication, the store assigns
  ADMIN if it was the first identity ever created, VIEWER otherwise.
  Deciding by creation order rather than table size keeps the admin
  seat reachable even when more identities register before the first
  one logs in. The check-then-assign runs as a single guarded statement
  inside the store so that two concurrent first logins can never both
  become ADMIN.

SESSIONS:
  HS256 JWTs carrying id, email and role. The token's role claim is a
  convenience; the store's role column is authoritative.
*/
package identity

import (
	"context"
	"errors"
	"time"
)

// Role is an identity's authorization level.
type Role string

const (
	RoleUnset  Role = ""
	RoleViewer Role = "VIEWER"
	RoleAdmin  Role = "ADMIN"
)

// Allows reports whether the role satisfies the required level.
func (r Role) Allows(required Role) bool {
	return rank(r) >= rank(required)
}

func rank(r Role) int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// Identity is a registered user of the system.
type Identity struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

var (
	// ErrEmailTaken is returned when registering a duplicate email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned on a failed login. Deliberately
	// indistinguishable between unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a session token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Store persists identities and performs the atomic bootstrap.
type Store interface {
	CreateIdentity(ctx context.Context, id Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)

	// AssignBootstrapRole runs the access-bootstrap for the identity:
	// if a role is already set it is returned unchanged; otherwise the
	// identity becomes ADMIN when it was the first identity created
	// and VIEWER otherwise. The check and the write are atomic.
	AssignBootstrapRole(ctx context.Context, id string) (Role, error)
}
