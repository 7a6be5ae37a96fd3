package membership

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresStore connects to PULSE_TEST_DATABASE_URL, skipping when unset.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("PULSE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PULSE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresMembershipLifecycle(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	user := "u_" + uuid.NewString()

	m, err := s.Grant(ctx, Membership{UserID: user, OrganizationID: "org_a", Role: RoleMember})
	require.NoError(t, err)
	assert.Equal(t, RoleMember, m.Role)

	got, ok, err := s.Lookup(ctx, user, "org_a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RoleMember, got.Role)

	_, err = s.Grant(ctx, Membership{UserID: user, OrganizationID: "org_a", Role: RoleAdmin})
	require.NoError(t, err)
	list, err := s.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, RoleAdmin, list[0].Role)

	_, err = s.IssueToken(ctx, user, "org_b")
	assert.ErrorIs(t, err, ErrNotMember)

	tok, err := s.IssueToken(ctx, user, "org_a")
	require.NoError(t, err)
	rec, ok, err := s.ResolveToken(ctx, tok)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user, rec.UserID)

	require.NoError(t, s.RevokeToken(ctx, tok))
	_, ok, err = s.ResolveToken(ctx, tok)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Revoke(ctx, user, "org_a"))
	_, ok, err = s.Lookup(ctx, user, "org_a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenSelectsPebbleWithoutURL(t *testing.T) {
	db := newTestStore(t).db
	m, err := Open(context.Background(), "", db)
	require.NoError(t, err)
	_, ok := m.(*PebbleStore)
	assert.True(t, ok)
}
