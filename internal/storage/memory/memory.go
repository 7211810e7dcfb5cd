// Package memory implements an in-process API key store.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/pkg/apikey"
)

const (
	minFilterCapacity = 1024
	filterFPR         = 0.001
)

var _ auth.Store = (*Store)(nil)

// Store keeps API key records in memory. Lookups ignore case. A bloom filter
// over the normalized keys rejects most unknown keys without touching the map.
type Store struct {
	mu     sync.RWMutex
	keys   map[string]*auth.APIKeyInfo
	filter *bloom.BloomFilter
}

// New returns a Store holding infos.
func New(infos ...*auth.APIKeyInfo) *Store {
	s := &Store{
		keys:   make(map[string]*auth.APIKeyInfo, len(infos)),
		filter: bloom.NewWithEstimates(uint(max(len(infos), minFilterCapacity)), filterFPR),
	}
	for _, info := range infos {
		s.put(info)
	}
	return s
}

// Defaults returns the demo keys: Key1 owned by Admin and Key2 owned by User.
func Defaults() []*auth.APIKeyInfo {
	return []*auth.APIKeyInfo{
		{
			Key:    "Key1",
			Owner:  "Admin",
			Claims: []apikey.Claim{{Type: apikey.ClaimRole, Value: "Admin"}},
			Active: true,
		},
		{
			Key:    "Key2",
			Owner:  "User",
			Claims: []apikey.Claim{{Type: apikey.ClaimRole, Value: "User"}},
			Active: true,
		},
	}
}

// FindByKey returns the active record matching key, ignoring case.
func (s *Store) FindByKey(_ context.Context, key string) (*auth.APIKeyInfo, error) {
	norm := normalize(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.filter.TestString(norm) {
		return nil, auth.ErrNotFound
	}
	info, ok := s.keys[norm]
	if !ok || !info.Active {
		return nil, auth.ErrNotFound
	}
	return clone(info), nil
}

// Upsert inserts or replaces the record with the same key.
func (s *Store) Upsert(_ context.Context, info *auth.APIKeyInfo) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(info), nil
}

// Len returns the number of stored records, active or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.keys)
}

func (s *Store) put(info *auth.APIKeyInfo) string {
	info = clone(info)
	norm := normalize(info.Key)
	switch prev, ok := s.keys[norm]; {
	case ok:
		info.ID = prev.ID
	case info.ID == "":
		info.ID = uuid.NewString()
	}
	s.keys[norm] = info
	s.filter.AddString(norm)
	return info.ID
}

func normalize(key string) string {
	return strings.ToLower(key)
}

func clone(info *auth.APIKeyInfo) *auth.APIKeyInfo {
	c := *info
	c.Claims = slices.Clone(info.Claims)
	return &c
}
