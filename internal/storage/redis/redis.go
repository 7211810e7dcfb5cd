// Package redis implements the API key store on Redis hashes.
package redis

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/apikey-auth/internal/domain/auth"
)

// DefaultPrefix is prepended to the normalized key to form the hash name.
const DefaultPrefix = "apikey:"

const (
	fieldID     = "id"
	fieldKey    = "key"
	fieldOwner  = "owner"
	fieldClaims = "claims"
	fieldActive = "active"
)

// NewClient parses redisURL and returns a connected client.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

var _ auth.Store = (*APIKeyRepository)(nil)

// APIKeyRepository stores each record in a hash named prefix + lower(key).
type APIKeyRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewAPIKeyRepository returns an APIKeyRepository using client. An empty
// prefix means DefaultPrefix.
func NewAPIKeyRepository(client redis.UniversalClient, prefix string) *APIKeyRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &APIKeyRepository{client: client, prefix: prefix}
}

// FindByKey looks up an active API key, ignoring case.
// Returns auth.ErrNotFound when no matching key exists.
func (r *APIKeyRepository) FindByKey(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	fields, err := r.client.HGetAll(ctx, r.name(key)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	if len(fields) == 0 {
		return nil, auth.ErrNotFound
	}

	active, err := strconv.ParseBool(fields[fieldActive])
	if err != nil {
		return nil, errors.Wrap(err, "parse active flag")
	}
	if !active {
		return nil, auth.ErrNotFound
	}

	claims, err := auth.DecodeClaims([]byte(fields[fieldClaims]))
	if err != nil {
		return nil, errors.Wrapf(err, "api key %s", fields[fieldID])
	}

	return &auth.APIKeyInfo{
		ID:     fields[fieldID],
		Key:    fields[fieldKey],
		Owner:  fields[fieldOwner],
		Claims: claims,
		Active: active,
	}, nil
}

// Upsert writes the record, replacing the one whose key matches ignoring
// case. The stored id of an existing record is kept and returned.
func (r *APIKeyRepository) Upsert(ctx context.Context, info *auth.APIKeyInfo) (string, error) {
	name := r.name(info.Key)

	id := info.ID
	if id == "" {
		id = uuid.NewString()
	}

	var stored *redis.StringCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, name, fieldID, id)
		p.HSet(ctx, name,
			fieldKey, info.Key,
			fieldOwner, info.Owner,
			fieldClaims, auth.EncodeClaims(info.Claims),
			fieldActive, strconv.FormatBool(info.Active),
		)
		stored = p.HGet(ctx, name, fieldID)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "upsert api key")
	}
	return stored.Val(), nil
}

// Ping reports whether Redis is reachable.
func (r *APIKeyRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *APIKeyRepository) name(key string) string {
	return r.prefix + strings.ToLower(key)
}
