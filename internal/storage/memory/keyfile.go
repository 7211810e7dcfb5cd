package memory

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"gopkg.in/yaml.v3"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/pkg/apikey"
)

// keyFile is the YAML layout of a key file:
//
//	keys:
//	  - key: Key1
//	    owner: Admin
//	    claims:
//	      - type: role
//	        value: Admin
type keyFile struct {
	Keys []keyEntry `yaml:"keys"`
}

type keyEntry struct {
	ID     string       `yaml:"id"`
	Key    string       `yaml:"key"`
	Owner  string       `yaml:"owner"`
	Active *bool        `yaml:"active"`
	Claims []claimEntry `yaml:"claims"`
}

type claimEntry struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// ReadKeys decodes a YAML key file. Records are active unless they set
// active: false.
func ReadKeys(r io.Reader) ([]*auth.APIKeyInfo, error) {
	var f keyFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "decode key file")
	}

	infos := make([]*auth.APIKeyInfo, 0, len(f.Keys))
	seen := make(map[string]struct{}, len(f.Keys))
	for i, e := range f.Keys {
		if strings.TrimSpace(e.Key) == "" {
			return nil, errors.Errorf("key #%d: key is empty", i+1)
		}
		norm := normalize(e.Key)
		if _, ok := seen[norm]; ok {
			return nil, errors.Errorf("key #%d: duplicate key", i+1)
		}
		seen[norm] = struct{}{}

		info := &auth.APIKeyInfo{
			ID:     e.ID,
			Key:    e.Key,
			Owner:  e.Owner,
			Active: e.Active == nil || *e.Active,
		}
		for _, c := range e.Claims {
			if c.Type == "" {
				return nil, errors.Errorf("key #%d: claim type is empty", i+1)
			}
			info.Claims = append(info.Claims, apikey.Claim{Type: c.Type, Value: c.Value})
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// LoadFile reads a key file from path. Files ending in .gz are decompressed.
func LoadFile(path string) ([]*auth.APIKeyInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	infos, err := ReadKeys(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return infos, nil
}
