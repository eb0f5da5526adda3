/*
service.go - Registration, login and session token verification

FLOW:
  Register: normalize email, bcrypt-hash the password, persist with an
            unset role.
  Login:    verify the hash, run access-bootstrap (idempotent), mint a
            signed session token carrying the authoritative role.
  Verify:   parse and validate a bearer token for the API middleware.
*/
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is the session lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Service handles registration, authentication and tokens.
type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
}

// NewService wires the service. A non-positive ttl falls back to
// DefaultTokenTTL.
func NewService(store Store, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{store: store, secret: secret, ttl: ttl}
}

// Register creates a new identity with an unset role.
func (s *Service) Register(ctx context.Context, email, name, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         RoleUnset,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateIdentity(ctx, id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Session is the result of a successful login.
type Session struct {
	Token    string
	Role     Role
	Identity Identity
}

// Login authenticates the identity, runs the access-bootstrap on its
// first successful authentication, and mints a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	ident, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if ident == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	role, err := s.store.AssignBootstrapRole(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap role: %w", err)
	}
	ident.Role = role

	token, err := s.mint(*ident)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Role: role, Identity: *ident}, nil
}

// Claims is the JWT payload for a session.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) mint(ident Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: ident.Email,
		Role:  string(ident.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
