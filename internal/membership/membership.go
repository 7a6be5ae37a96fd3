// Package membership answers "may this user see this organization" and
// resolves bearer tokens to users. Records live in the local Pebble store by
// default or in PostgreSQL when a database URL is configured.
package membership

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Role is a member's role in an organization.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ParseRole accepts a role name in any case. Empty means RoleOwner.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleOwner, nil
	}
	switch r := Role(strings.ToUpper(s)); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, nil
	}
	return "", fmt.Errorf("membership: unknown role %q", s)
}

// Membership links a user to an organization.
type Membership struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Role           Role   `json:"role"`
	CreatedAtMs    int64  `json:"createdAtMs"`
}

// Token is what a bearer token resolves to. OrganizationID is the caller's
// default organization.
type Token struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	CreatedAtMs    int64  `json:"createdAtMs"`
}

var (
	// ErrInvalidArgument is returned for empty ids.
	ErrInvalidArgument = errors.New("membership: user and organization ids are required")
	// ErrNotMember is returned when a token is issued for an organization the
	// user does not belong to.
	ErrNotMember = errors.New("membership: user is not a member of the organization")
)

// Store is the read side used on every stream admission.
type Store interface {
	// Lookup reports whether userID belongs to orgID.
	Lookup(ctx context.Context, userID, orgID string) (Membership, bool, error)
	// ResolveToken returns the record for a raw bearer token.
	ResolveToken(ctx context.Context, token string) (Token, bool, error)
	Close() error
}

// Admin is the write side used by the member commands.
type Admin interface {
	Store
	// Grant creates the membership, or updates its role if it exists.
	Grant(ctx context.Context, m Membership) (Membership, error)
	Revoke(ctx context.Context, userID, orgID string) error
	List(ctx context.Context, userID string) ([]Membership, error)
	// IssueToken mints a bearer token for userID whose default organization
	// is orgID. The raw token is returned once and only its hash is stored.
	IssueToken(ctx context.Context, userID, orgID string) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("membership: generate token: %w", err)
	}
	return "pls_" + hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func validIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" || strings.ContainsRune(id, '/') {
			return ErrInvalidArgument
		}
	}
	return nil
}
