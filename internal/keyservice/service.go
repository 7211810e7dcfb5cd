// Package keyservice implements apikey.Service on top of key repositories.
package keyservice

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/pkg/apikey"
)

var _ apikey.Service = (*RepositoryService)(nil)

// RepositoryService validates keys by looking them up in a Repository.
type RepositoryService struct {
	repo auth.Repository
}

// NewRepositoryService returns a RepositoryService backed by repo.
func NewRepositoryService(repo auth.Repository) *RepositoryService {
	return &RepositoryService{repo: repo}
}

// Authenticate returns the record matching key, or nil when there is none.
// Repository failures are logged and returned.
func (s *RepositoryService) Authenticate(ctx context.Context, key string) (apikey.APIKey, error) {
	info, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, nil
		}
		zctx.From(ctx).Error("Lookup API key", zap.Error(err))
		return nil, errors.Wrap(err, "lookup api key")
	}
	return info.Credential(), nil
}
