package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// SecretsFile is the on-disk shape of the secrets store: one map of
// name->value per logtype, plus a universal set applied to every module.
type SecretsFile struct {
	Universal map[string]string            `yaml:"universal"`
	Logtypes  map[string]map[string]string `yaml:"logtypes"`
}

// SecretsStore resolves the secrets a module should receive, merging the
// universal set with its logtype's set. Loaded once at startup and treated
// as read-only thereafter, guarded only for concurrent test reloads.
type SecretsStore struct {
	mu   sync.RWMutex
	file SecretsFile
}

// LoadSecrets reads a SecretsFile from path. A missing file yields an empty
// store rather than an error, matching the loader's "secrets are optional"
// contract.
func LoadSecrets(path string) (*SecretsStore, error) {
	if path == "" {
		return &SecretsStore{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SecretsStore{}, nil
		}
		return nil, fmt.Errorf("secrets: open %s: %w", path, err)
	}
	defer f.Close()

	var sf SecretsFile
	if err := yaml.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("secrets: decode %s: %w", path, err)
	}
	return &SecretsStore{file: sf}, nil
}

// For returns the merged secret set for a logtype: the universal set with
// the logtype's own entries overriding on key collision.
func (s *SecretsStore) For(logtype string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]string, len(s.file.Universal))
	for k, v := range s.file.Universal {
		merged[k] = v
	}
	for k, v := range s.file.Logtypes[logtype] {
		merged[k] = v
	}
	return merged
}
