package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/apikey-auth/internal/domain/auth"
)

const (
	findByKeySQL = `SELECT id::text, key, owner, claims, active
	FROM api_keys WHERE lower(key) = lower($1) AND active = TRUE`

	upsertSQL = `INSERT INTO api_keys (id, key, owner, claims, active)
	VALUES ($1, $2, $3, $4::jsonb, $5)
	ON CONFLICT (lower(key)) DO UPDATE SET
		key = EXCLUDED.key,
		owner = EXCLUDED.owner,
		claims = EXCLUDED.claims,
		active = EXCLUDED.active,
		updated_at = now()
	RETURNING id::text`
)

var _ auth.Store = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByKey looks up an active API key, ignoring case.
// Returns auth.ErrNotFound when no matching key exists.
func (r *APIKeyRepository) FindByKey(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	var (
		info   auth.APIKeyInfo
		claims []byte
	)
	err := r.pool.QueryRow(ctx, findByKeySQL, key).Scan(
		&info.ID, &info.Key, &info.Owner, &claims, &info.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, errors.Wrap(err, "find api key")
	}

	info.Claims, err = auth.DecodeClaims(claims)
	if err != nil {
		return nil, errors.Wrapf(err, "api key %s", info.ID)
	}
	return &info, nil
}

// Upsert inserts the record or replaces the one whose key matches ignoring
// case. The stored id of an existing record is kept and returned.
func (r *APIKeyRepository) Upsert(ctx context.Context, info *auth.APIKeyInfo) (string, error) {
	id := info.ID
	if id == "" {
		id = uuid.NewString()
	}
	var stored string
	if err := r.pool.QueryRow(ctx, upsertSQL,
		id, info.Key, info.Owner, string(auth.EncodeClaims(info.Claims)), info.Active,
	).Scan(&stored); err != nil {
		return "", errors.Wrap(err, "upsert api key")
	}
	return stored, nil
}

// Ping reports whether the database is reachable.
func (r *APIKeyRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
