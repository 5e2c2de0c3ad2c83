package alerts

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore implements Store with in-memory storage.
type MemoryStore struct {
	configs map[string]*Config
	mu      sync.RWMutex
}

// NewMemoryStore creates an in-memory alert config store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]*Config)}
}

func copyConfig(c *Config) *Config {
	cp := *c
	cp.Triggers = append([]Trigger(nil), c.Triggers...)
	if c.LastSuccess != nil {
		t := *c.LastSuccess
		cp.LastSuccess = &t
	}
	return &cp
}

func (s *MemoryStore) Create(_ context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = copyConfig(cfg)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, fmt.Errorf("alert config %s not found", id)
	}
	return copyConfig(cfg), nil
}

// ForAccount returns the account's configs plus any wildcard configs.
func (s *MemoryStore) ForAccount(_ context.Context, accountID string) ([]*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Config
	for _, cfg := range s.configs {
		if cfg.AccountID == accountID || cfg.AccountID == "*" {
			result = append(result, copyConfig(cfg))
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(_ context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[cfg.ID]; !ok {
		return fmt.Errorf("alert config %s not found", cfg.ID)
	}
	s.configs[cfg.ID] = copyConfig(cfg)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, id)
	return nil
}
