// Package auth resolves who the console is acting as from the bearer
// token it was started with.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleAgent      Role = "agent"
)

var (
	ErrMissingSubject = errors.New("internal/auth: subject claim is missing")
	ErrUnknownRole    = errors.New("internal/auth: unknown role")
)

// Identity is the signed-in staff member.
type Identity struct {
	UserID string
	Role   Role
	Token  string
}

// Overview reports whether the identity sees every client rather than
// only the ones assigned to it.
func (i Identity) Overview() bool {
	return i.Role == RoleAdmin || i.Role == RoleSuperadmin
}

// Claims mirrors what the backend puts in its access tokens.
type Claims struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) userID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.ID
}

// ParseIdentity reads the identity out of token without checking its
// signature. The backend remains the authority; the console only needs
// to know which rooms and endpoints belong to the user.
func ParseIdentity(token string) (Identity, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")

	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return Identity{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}
	return identityFromClaims(token, claims)
}

// ValidateIdentity is ParseIdentity with HS256 signature and expiry
// checks, for deployments that share the signing secret.
func ValidateIdentity(token, secret string) (Identity, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return Identity{}, errors.New("internal/auth: token is invalid")
	}
	return identityFromClaims(token, claims)
}

func identityFromClaims(token string, claims *Claims) (Identity, error) {
	id := Identity{UserID: claims.userID(), Token: token}
	if id.UserID == "" {
		return Identity{}, ErrMissingSubject
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, err
	}
	id.Role = role
	return id, nil
}

// ParseRole maps a role string onto a Role. An empty string is an agent.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleAgent:
		return RoleAgent, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperadmin:
		return RoleSuperadmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}
