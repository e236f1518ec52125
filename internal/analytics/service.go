package analytics

import (
	"context"
	"fmt"
	"time"

	"clinic_webhook_backend/platform/logger"

	"github.com/google/uuid"
)

const recentEventsLimit = 10

// Service records events and serves month-corrected statistics.
type Service struct {
	store Store
	loc   *time.Location
	now   func() time.Time
	log   *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service; month labels are computed in loc.
func NewService(store Store, loc *time.Location, log *logger.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{store: store, loc: loc, now: time.Now, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one event for tenantID and bumps its counters.
func (s *Service) Record(ctx context.Context, tenantID uuid.UUID, kind EventType, phone string, metadata map[string]interface{}) error {
	if !kind.Valid() {
		return fmt.Errorf("record analytics: unknown event type %q", kind)
	}

	now := s.now()
	ev := Event{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Type:      kind,
		Phone:     phone,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
	}
	if err := s.store.Record(ctx, ev, MonthLabel(now, s.loc)); err != nil {
		return fmt.Errorf("record analytics %s: %w", kind, err)
	}
	return nil
}

// GetStats returns the tenant's counters. Monthly figures under a stale month
// label read as zero; the stored row is left untouched until the next Record.
func (s *Service) GetStats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	current := MonthLabel(s.now(), s.loc)

	stats, ok, err := s.store.Stats(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	if !ok {
		return Stats{TenantID: tenantID, CurrentMonth: current}, nil
	}
	if stats.CurrentMonth != current {
		stats.Monthly = Counters{}
		stats.CurrentMonth = current
	}
	return stats, nil
}

// ListEvents returns a page of events.
func (s *Service) ListEvents(ctx context.Context, filter EventFilter) ([]Event, int, error) {
	return s.store.ListEvents(ctx, filter)
}

// RecentEvents returns the newest events for tenantID.
func (s *Service) RecentEvents(ctx context.Context, tenantID uuid.UUID) ([]Event, error) {
	items, _, err := s.store.ListEvents(ctx, EventFilter{TenantID: tenantID, Page: 1, Limit: recentEventsLimit})
	return items, err
}
