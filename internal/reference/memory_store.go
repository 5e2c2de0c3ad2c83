package reference

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory storage for demo/testing.
type MemoryStore struct {
	links  []*Link
	seen   map[string]bool // "type|hash|account" uniqueness key
	nextID int64
	mu     sync.RWMutex
}

// NewMemoryStore creates an in-memory reference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

func tripleKey(t Type, valueHash, accountID string) string {
	return string(t) + "|" + valueHash + "|" + accountID
}

func (s *MemoryStore) Register(_ context.Context, link *Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey(link.ReferenceType, link.ValueHash, link.AccountID)
	if s.seen[key] {
		return nil // idempotent
	}
	s.seen[key] = true

	s.nextID++
	cp := *link
	cp.ID = s.nextID
	cp.CreatedAt = time.Now().UTC()
	s.links = append(s.links, &cp)
	return nil
}

func (s *MemoryStore) AccountsByReference(_ context.Context, t Type, valueHash string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := []string{}
	for _, l := range s.links { // insertion order = first-registration order
		if l.ReferenceType == t && l.ValueHash == valueHash {
			accounts = append(accounts, l.AccountID)
		}
	}
	return accounts, nil
}

func (s *MemoryStore) ReferencesForAccount(_ context.Context, accountID string) ([]*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := []*Link{}
	for _, l := range s.links {
		if l.AccountID == accountID {
			cp := *l
			links = append(links, &cp)
		}
	}
	return links, nil
}

func (s *MemoryStore) CrossLookup(_ context.Context, t Type, minAccounts int) ([]*CrossLookupResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pair struct {
		t    Type
		hash string
	}
	grouped := make(map[pair][]string)
	var order []pair
	for _, l := range s.links {
		if t != "" && l.ReferenceType != t {
			continue
		}
		p := pair{l.ReferenceType, l.ValueHash}
		if _, ok := grouped[p]; !ok {
			order = append(order, p)
		}
		grouped[p] = append(grouped[p], l.AccountID)
	}

	results := []*CrossLookupResult{}
	for _, p := range order {
		accounts := grouped[p]
		if len(accounts) < minAccounts {
			continue
		}
		results = append(results, &CrossLookupResult{
			ReferenceType: p.t,
			ValueHash:     p.hash,
			AccountIDs:    accounts,
			Count:         len(accounts),
		})
	}

	// Biggest groups first; ties broken by hash for stable output.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].ValueHash < results[j].ValueHash
	})
	return results, nil
}

func (s *MemoryStore) SharedReferenceCount(_ context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pair struct {
		t    Type
		hash string
	}
	counts := make(map[pair]int)
	mine := make(map[pair]bool)
	for _, l := range s.links {
		p := pair{l.ReferenceType, l.ValueHash}
		counts[p]++
		if l.AccountID == accountID {
			mine[p] = true
		}
	}

	shared := 0
	for p := range mine {
		if counts[p] >= 2 {
			shared++
		}
	}
	return shared, nil
}
