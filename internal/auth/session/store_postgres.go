package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kabilan-0809/chat-application/internal/identity"
)

// PostgresStore is a session Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "chat").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("session: empty schema")
		}
		if !sessionIdentRe.MatchString(schema) {
			return errors.New("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chat",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return st, nil
}

// Create creates a session row.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, identityID, tokenHash string, expiresAt time.Time) (string, error) {
	if s == nil || s.pool == nil {
		return "", errors.New("session: nil store")
	}
	if identityID == "" || tokenHash == "" {
		return "", errors.New("session: invalid input")
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	sessions := s.ident("sessions")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (id, identity_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, identityID, tokenHash, now, expiresAt,
	); err != nil {
		return "", err
	}
	return id, nil
}

// GetByTokenHash loads a session row by credential hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	if s == nil || s.pool == nil {
		return Row{}, errors.New("session: nil store")
	}

	sessions := s.ident("sessions")

	var row Row
	err := s.pool.QueryRow(ctx,
		`SELECT id, identity_id, token_hash, created_at, last_used_at, expires_at, revoked_at
		 FROM `+sessions+` WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&row.ID,
		&row.IdentityID,
		&row.TokenHash,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	if s == nil || s.pool == nil {
		return errors.New("session: nil store")
	}

	sessions := s.ident("sessions")
	_, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+` SET last_used_at = $1 WHERE id = $2`,
		now, sessionID,
	)
	return err
}

// Revoke revokes a single session.
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string) error {
	if s == nil || s.pool == nil {
		return errors.New("session: nil store")
	}

	sessions := s.ident("sessions")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+` SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		now, sessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already revoked or unknown; logout is idempotent either way.
		return nil
	}
	return nil
}

var sessionIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (s *PostgresStore) ident(table string) string {
	return `"` + s.schema + `"."` + table + `"`
}
