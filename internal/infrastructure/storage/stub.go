package storage

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// MemoryStore keeps uploads in memory and hands out fake URLs.
// Used when storage is disabled and in tests.
type MemoryStore struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{BaseURL: "https://storage.local", objects: make(map[string][]byte)}
}

// Put stores a copy of data
func (s *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return ErrKeyRequired
	}
	s.mu.Lock()
	s.objects[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// DownloadURL returns BaseURL/key with the expiry as a query parameter
func (s *MemoryStore) DownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, ErrKeyRequired
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/" + key + "?expires=" + url.QueryEscape(expiresAt.UTC().Format(time.RFC3339)), expiresAt, nil
}

// Get returns the stored bytes for key
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}
