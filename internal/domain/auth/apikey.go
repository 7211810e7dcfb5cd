package auth

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/apikey-auth/pkg/apikey"
)

// ErrNotFound is returned by a Repository when no active key matches.
var ErrNotFound = errors.New("api key not found")

// APIKeyInfo is a stored API key record.
type APIKeyInfo struct {
	ID     string
	Key    string
	Owner  string
	Claims []apikey.Claim
	Active bool
}

// Credential converts the record into the value handed to the authentication
// handler.
func (i *APIKeyInfo) Credential() apikey.Key {
	return apikey.NewKey(i.Key, i.Owner, i.Claims...)
}

// Repository provides lookup of API keys by their raw value. Lookups ignore
// case and skip inactive records.
type Repository interface {
	FindByKey(ctx context.Context, key string) (*APIKeyInfo, error)
}

// Store is a Repository that can also persist records.
type Store interface {
	Repository
	// Upsert stores info, keeping the id of an existing record with the same
	// key, and returns the id it stored.
	Upsert(ctx context.Context, info *APIKeyInfo) (string, error)
}
