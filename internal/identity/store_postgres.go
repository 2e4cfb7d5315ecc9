package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is an identity Store backed by PostgreSQL.
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
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed identity store.
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
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

// UpsertByProvider creates or refreshes the identity row bound to a provider subject.
func (s *PostgresStore) UpsertByProvider(ctx context.Context, now time.Time, p Profile) (Identity, error) {
	if s == nil || s.pool == nil {
		return Identity{}, errors.New("identity: nil store")
	}
	if strings.TrimSpace(p.ProviderID) == "" {
		return Identity{}, errors.New("identity: missing provider id")
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	newID, err := NewULID(now)
	if err != nil {
		return Identity{}, err
	}

	users := pgIdent(s.schema, "users")

	// ON CONFLICT keeps id/created_at stable while refreshing the profile
	// fields on every re-auth.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+users+` (id, provider_id, display_name, email, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   email        = EXCLUDED.email,
		   avatar_url   = EXCLUDED.avatar_url
		 RETURNING id, provider_id, display_name, email, avatar_url, created_at`,
		newID, p.ProviderID, p.DisplayName, p.Email, p.AvatarURL, now,
	)

	var ident Identity
	if err := row.Scan(
		&ident.ID,
		&ident.ProviderID,
		&ident.DisplayName,
		&ident.Email,
		&ident.AvatarURL,
		&ident.CreatedAt,
	); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// GetByID loads an identity row by internal id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Identity, error) {
	if s == nil || s.pool == nil {
		return Identity{}, errors.New("identity: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	users := pgIdent(s.schema, "users")

	var ident Identity
	err := s.pool.QueryRow(ctx,
		`SELECT id, provider_id, display_name, email, avatar_url, created_at
		 FROM `+users+` WHERE id = $1`,
		id,
	).Scan(
		&ident.ID,
		&ident.ProviderID,
		&ident.DisplayName,
		&ident.Email,
		&ident.AvatarURL,
		&ident.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// ---- identifier quoting ----

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRe.MatchString(s)
}

func pgIdent(schema, table string) string {
	return `"` + schema + `"."` + table + `"`
}
