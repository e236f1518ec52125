package analytics

import (
	"context"

	"github.com/google/uuid"
)

// Store persists events and counters. Record must apply the event append and
// the counter update as one unit, serialized per tenant only.
type Store interface {
	// Record appends ev and bumps its counters under month. A stored label
	// different from month resets every monthly counter first.
	Record(ctx context.Context, ev Event, month string) error
	// Stats returns the raw counter row; ok is false when the tenant has none.
	Stats(ctx context.Context, tenantID uuid.UUID) (Stats, bool, error)
	// ListEvents returns a page of events, newest first, and the total match count.
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, int, error)
}
