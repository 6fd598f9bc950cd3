// Package file provides a file-based key/value store for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parley-ai/parley/pkg/kvstore"
)

// Store implements kvstore.Store as one JSON file per key under a root
// directory. Keys are URL-escaped to produce safe file names.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a file store rooted at the given directory, creating it if
// needed. A "file://" scheme prefix is accepted and stripped.
func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	_ = os.MkdirAll(cleanRoot, 0o755)

	return &Store{root: cleanRoot}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, url.PathEscape(key)+".json")
}

func (s *Store) Get(_ context.Context, key string) (kvstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kvstore.ErrNotFound
		}

		return nil, fmt.Errorf("file get %s: %w", key, err)
	}

	var record kvstore.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("file get %s: corrupt record: %w", key, err)
	}

	return record, nil
}

func (s *Store) Put(_ context.Context, key string, record kvstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("file put %s: %w", key, err)
	}

	if err := os.WriteFile(s.path(key), payload, 0o644); err != nil {
		return fmt.Errorf("file put %s: %w", key, err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file delete %s: %w", key, err)
	}

	return nil
}

func (s *Store) Query(ctx context.Context, prefix string, limit int) (map[string]kvstore.Record, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.root)
	s.mu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("file query %s: %w", prefix, err)
	}

	results := make(map[string]kvstore.Record)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		key, err := url.PathUnescape(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}

		if limit > 0 && len(results) >= limit {
			break
		}

		record, err := s.Get(ctx, key)
		if err != nil {
			continue
		}

		results[key] = record
	}

	return results, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
