package membership

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/pulse/internal/storage/pebble"
)

var (
	memberPrefix = []byte("member/")
	tokenPrefix  = []byte("token/")
)

// memberKey builds member/<user>/<org>.
func memberKey(userID, orgID string) []byte {
	k := make([]byte, 0, len(memberPrefix)+len(userID)+len(orgID)+1)
	k = append(k, memberPrefix...)
	k = append(k, userID...)
	k = append(k, '/')
	k = append(k, orgID...)
	return k
}

func tokenKey(token string) []byte {
	return append(append([]byte(nil), tokenPrefix...), hashToken(token)...)
}

// PebbleStore keeps memberships and token hashes in the local store.
type PebbleStore struct {
	db  *pebblestore.DB
	now func() time.Time
}

// NewPebble returns a store over db. The store does not own db.
func NewPebble(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db, now: time.Now}
}

func (s *PebbleStore) Lookup(_ context.Context, userID, orgID string) (Membership, bool, error) {
	if validIDs(userID, orgID) != nil {
		return Membership{}, false, nil
	}
	var m Membership
	ok, err := s.getJSON(memberKey(userID, orgID), &m)
	return m, ok, err
}

func (s *PebbleStore) ResolveToken(_ context.Context, token string) (Token, bool, error) {
	if token == "" {
		return Token{}, false, nil
	}
	var t Token
	ok, err := s.getJSON(tokenKey(token), &t)
	return t, ok, err
}

func (s *PebbleStore) getJSON(key []byte, v any) (bool, error) {
	b, err := s.db.Get(key)
	if errors.Is(err, pebblestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership: read %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("membership: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PebbleStore) Grant(ctx context.Context, m Membership) (Membership, error) {
	if err := validIDs(m.UserID, m.OrganizationID); err != nil {
		return Membership{}, err
	}
	role, err := ParseRole(string(m.Role))
	if err != nil {
		return Membership{}, err
	}
	m.Role = role
	if existing, ok, err := s.Lookup(ctx, m.UserID, m.OrganizationID); err != nil {
		return Membership{}, err
	} else if ok {
		m.CreatedAtMs = existing.CreatedAtMs
	} else {
		m.CreatedAtMs = s.now().UnixMilli()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return Membership{}, err
	}
	if err := s.db.Set(memberKey(m.UserID, m.OrganizationID), data); err != nil {
		return Membership{}, fmt.Errorf("membership: grant: %w", err)
	}
	return m, nil
}

// Revoke removes the membership. Tokens whose default organization it was
// keep resolving, but every stream admission for that organization fails.
func (s *PebbleStore) Revoke(_ context.Context, userID, orgID string) error {
	if err := validIDs(userID, orgID); err != nil {
		return err
	}
	if err := s.db.Delete(memberKey(userID, orgID)); err != nil {
		return fmt.Errorf("membership: revoke: %w", err)
	}
	return nil
}

// List returns userID's memberships ordered by creation time.
func (s *PebbleStore) List(_ context.Context, userID string) ([]Membership, error) {
	if err := validIDs(userID); err != nil {
		return nil, err
	}
	prefix := append(append([]byte(nil), memberPrefix...), userID+"/"...)
	var out []Membership
	err := s.db.ScanPrefix(prefix, func(_, v []byte) error {
		var m Membership
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("membership: list: %w", err)
	}
	slices.SortStableFunc(out, func(a, b Membership) int { return cmp.Compare(a.CreatedAtMs, b.CreatedAtMs) })
	return out, nil
}

func (s *PebbleStore) IssueToken(ctx context.Context, userID, orgID string) (string, error) {
	if err := validIDs(userID, orgID); err != nil {
		return "", err
	}
	if _, ok, err := s.Lookup(ctx, userID, orgID); err != nil {
		return "", err
	} else if !ok {
		return "", ErrNotMember
	}
	raw, err := newToken()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(Token{UserID: userID, OrganizationID: orgID, CreatedAtMs: s.now().UnixMilli()})
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(b *pebble.Batch) error {
		return b.Set(tokenKey(raw), data, nil)
	})
	if err != nil {
		return "", fmt.Errorf("membership: issue token: %w", err)
	}
	return raw, nil
}

func (s *PebbleStore) RevokeToken(_ context.Context, token string) error {
	if err := s.db.Delete(tokenKey(token)); err != nil {
		return fmt.Errorf("membership: revoke token: %w", err)
	}
	return nil
}

// Close is a no-op; the runtime owns the database.
func (s *PebbleStore) Close() error { return nil }
