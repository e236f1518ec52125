package analytics

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type tenantLedger struct {
	mu     sync.Mutex
	stats  *Stats
	events []Event
}

// MemoryStore keeps analytics in process memory with one lock per tenant.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantLedger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[uuid.UUID]*tenantLedger)}
}

func (s *MemoryStore) ledger(tenantID uuid.UUID) *tenantLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tenants[tenantID]
	if !ok {
		l = &tenantLedger{}
		s.tenants[tenantID] = l
	}
	return l
}

func (s *MemoryStore) Record(_ context.Context, ev Event, month string) error {
	l := s.ledger(ev.TenantID)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)

	switch {
	case l.stats == nil:
		l.stats = &Stats{TenantID: ev.TenantID, CurrentMonth: month}
	case l.stats.CurrentMonth != month:
		l.stats.Monthly = Counters{}
		l.stats.CurrentMonth = month
	}
	l.stats.Lifetime.Add(ev.Type, 1)
	l.stats.Monthly.Add(ev.Type, 1)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, tenantID uuid.UUID) (Stats, bool, error) {
	l := s.ledger(tenantID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats == nil {
		return Stats{}, false, nil
	}
	return *l.stats, true, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, filter EventFilter) ([]Event, int, error) {
	l := s.ledger(filter.TenantID)
	l.mu.Lock()
	matched := make([]Event, 0, len(l.events))
	for _, ev := range l.events {
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		if filter.StartDate != nil && ev.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && ev.CreatedAt.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, ev)
	}
	l.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []Event{}, total, nil
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

var _ Store = (*MemoryStore)(nil)
