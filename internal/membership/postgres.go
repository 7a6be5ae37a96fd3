package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS memberships (
	user_id         TEXT        NOT NULL,
	organization_id TEXT        NOT NULL,
	role            TEXT        NOT NULL DEFAULT 'OWNER',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, organization_id)
);
CREATE TABLE IF NOT EXISTS api_tokens (
	token_hash      TEXT        PRIMARY KEY,
	user_id         TEXT        NOT NULL,
	organization_id TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore reads memberships from a relational database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and verifies the connection.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("membership: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgres wraps an existing pool. The store takes ownership of pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("membership: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, userID, orgID string) (Membership, bool, error) {
	const sql = `
		SELECT user_id, organization_id, role, created_at
		FROM memberships
		WHERE user_id = $1 AND organization_id = $2
	`
	if validIDs(userID, orgID) != nil {
		return Membership{}, false, nil
	}
	var (
		m       Membership
		role    string
		created time.Time
	)
	err := s.pool.QueryRow(ctx, sql, userID, orgID).Scan(&m.UserID, &m.OrganizationID, &role, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return Membership{}, false, nil
	}
	if err != nil {
		return Membership{}, false, fmt.Errorf("select membership: %w", err)
	}
	m.Role = Role(role)
	m.CreatedAtMs = created.UnixMilli()
	return m, true, nil
}

func (s *PostgresStore) ResolveToken(ctx context.Context, token string) (Token, bool, error) {
	const sql = `
		SELECT user_id, organization_id, created_at
		FROM api_tokens
		WHERE token_hash = $1
	`
	if token == "" {
		return Token{}, false, nil
	}
	var (
		t       Token
		created time.Time
	)
	err := s.pool.QueryRow(ctx, sql, hashToken(token)).Scan(&t.UserID, &t.OrganizationID, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("select token: %w", err)
	}
	t.CreatedAtMs = created.UnixMilli()
	return t, true, nil
}

func (s *PostgresStore) Grant(ctx context.Context, m Membership) (Membership, error) {
	const sql = `
		INSERT INTO memberships (user_id, organization_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, organization_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
		RETURNING created_at
	`
	if err := validIDs(m.UserID, m.OrganizationID); err != nil {
		return Membership{}, err
	}
	role, err := ParseRole(string(m.Role))
	if err != nil {
		return Membership{}, err
	}
	m.Role = role
	var created time.Time
	if err := s.pool.QueryRow(ctx, sql, m.UserID, m.OrganizationID, string(role)).Scan(&created); err != nil {
		return Membership{}, fmt.Errorf("upsert membership: %w", err)
	}
	m.CreatedAtMs = created.UnixMilli()
	return m, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, userID, orgID string) error {
	const sql = `DELETE FROM memberships WHERE user_id = $1 AND organization_id = $2`
	if err := validIDs(userID, orgID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sql, userID, orgID); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Membership, error) {
	const sql = `
		SELECT user_id, organization_id, role, created_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("select memberships: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var (
			m       Membership
			role    string
			created time.Time
		)
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &role, &created); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAtMs = created.UnixMilli()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) IssueToken(ctx context.Context, userID, orgID string) (string, error) {
	const sql = `
		INSERT INTO api_tokens (token_hash, user_id, organization_id)
		VALUES ($1, $2, $3)
	`
	if _, ok, err := s.Lookup(ctx, userID, orgID); err != nil {
		return "", err
	} else if !ok {
		return "", ErrNotMember
	}
	raw, err := newToken()
	if err != nil {
		return "", err
	}
	if _, err := s.pool.Exec(ctx, sql, hashToken(raw), userID, orgID); err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return raw, nil
}

func (s *PostgresStore) RevokeToken(ctx context.Context, token string) error {
	const sql = `DELETE FROM api_tokens WHERE token_hash = $1`
	if _, err := s.pool.Exec(ctx, sql, hashToken(token)); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
