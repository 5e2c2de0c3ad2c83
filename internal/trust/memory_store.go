package trust

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements ProfileStore with in-memory storage.
type MemoryStore struct {
	profiles map[string]*Profile
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.Components = make(map[string]float64, len(p.Components))
	for k, v := range p.Components {
		cp.Components[k] = v
	}
	cp.Flags = make([]*RiskFlag, len(p.Flags))
	for i, f := range p.Flags {
		fc := *f
		cp.Flags[i] = &fc
	}
	return &cp
}

func (s *MemoryStore) Get(_ context.Context, accountID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return nil, nil
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) Create(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.AccountID]; exists {
		return nil // lazily-created profiles can race; first write wins
	}
	s.profiles[profile.AccountID] = copyProfile(profile)
	return nil
}

func (s *MemoryStore) UpdateScore(_ context.Context, accountID string, score float64, tier Tier, components map[string]float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return nil
	}
	p.Score = score
	p.Tier = tier
	p.Components = make(map[string]float64, len(components))
	for k, v := range components {
		p.Components[k] = v
	}
	p.UpdatedAt = at
	return nil
}

func (s *MemoryStore) RecordPayment(_ context.Context, accountID string, amountCents int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return nil
	}
	p.Transactions++
	if success {
		p.Successes++
		p.TotalSpentCents += amountCents
	} else {
		p.Failures++
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AddFlag(_ context.Context, accountID string, flag *RiskFlag, riskPoints float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return nil
	}
	fc := *flag
	p.Flags = append(p.Flags, &fc)
	p.RiskPoints = riskPoints
	p.UpdatedAt = flag.CreatedAt
	return nil
}
