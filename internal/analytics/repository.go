package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store with PostgreSQL. The counter upsert takes the
// tenant's row lock, so concurrent records for one tenant serialize while
// other tenants proceed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const upsertStatsQuery = `
	INSERT INTO client_stats (
		client_id, current_month,
		total_leads, total_appointments, total_messages, total_handoffs, total_new_conversations,
		monthly_leads, monthly_appointments, monthly_messages, monthly_handoffs, monthly_new_conversations
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $3, $4, $5, $6, $7)
	ON CONFLICT (client_id) DO UPDATE SET
		total_leads             = client_stats.total_leads + EXCLUDED.total_leads,
		total_appointments      = client_stats.total_appointments + EXCLUDED.total_appointments,
		total_messages          = client_stats.total_messages + EXCLUDED.total_messages,
		total_handoffs          = client_stats.total_handoffs + EXCLUDED.total_handoffs,
		total_new_conversations = client_stats.total_new_conversations + EXCLUDED.total_new_conversations,
		monthly_leads = CASE WHEN client_stats.current_month = EXCLUDED.current_month
			THEN client_stats.monthly_leads + EXCLUDED.monthly_leads ELSE EXCLUDED.monthly_leads END,
		monthly_appointments = CASE WHEN client_stats.current_month = EXCLUDED.current_month
			THEN client_stats.monthly_appointments + EXCLUDED.monthly_appointments ELSE EXCLUDED.monthly_appointments END,
		monthly_messages = CASE WHEN client_stats.current_month = EXCLUDED.current_month
			THEN client_stats.monthly_messages + EXCLUDED.monthly_messages ELSE EXCLUDED.monthly_messages END,
		monthly_handoffs = CASE WHEN client_stats.current_month = EXCLUDED.current_month
			THEN client_stats.monthly_handoffs + EXCLUDED.monthly_handoffs ELSE EXCLUDED.monthly_handoffs END,
		monthly_new_conversations = CASE WHEN client_stats.current_month = EXCLUDED.current_month
			THEN client_stats.monthly_new_conversations + EXCLUDED.monthly_new_conversations ELSE EXCLUDED.monthly_new_conversations END,
		current_month = EXCLUDED.current_month,
		updated_at = now()`

// Record appends the event and upserts the counters in one transaction.
func (r *Repository) Record(ctx context.Context, ev Event, month string) error {
	var metadata []byte
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		metadata = raw
	}

	var inc Counters
	inc.Add(ev.Type, 1)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin analytics tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO client_events (id, client_id, event_type, phone, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.TenantID, string(ev.Type), ev.Phone, metadata, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}

	if _, err := tx.Exec(ctx, upsertStatsQuery,
		ev.TenantID, month,
		inc.Leads, inc.Appointments, inc.Messages, inc.Handoffs, inc.NewConversations,
	); err != nil {
		return fmt.Errorf("upsert analytics counters: %w", err)
	}

	return tx.Commit(ctx)
}

// Stats returns the stored counter row.
func (r *Repository) Stats(ctx context.Context, tenantID uuid.UUID) (Stats, bool, error) {
	query := `
		SELECT current_month,
			total_leads, total_appointments, total_messages, total_handoffs, total_new_conversations,
			monthly_leads, monthly_appointments, monthly_messages, monthly_handoffs, monthly_new_conversations
		FROM client_stats
		WHERE client_id = $1`

	s := Stats{TenantID: tenantID}
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&s.CurrentMonth,
		&s.Lifetime.Leads, &s.Lifetime.Appointments, &s.Lifetime.Messages, &s.Lifetime.Handoffs, &s.Lifetime.NewConversations,
		&s.Monthly.Leads, &s.Monthly.Appointments, &s.Monthly.Messages, &s.Monthly.Handoffs, &s.Monthly.NewConversations,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stats{}, false, nil
		}
		return Stats{}, false, fmt.Errorf("load analytics counters: %w", err)
	}
	return s, true, nil
}

// ListEvents returns a filtered page of events, newest first.
func (r *Repository) ListEvents(ctx context.Context, filter EventFilter) ([]Event, int, error) {
	var eventType *string
	if filter.Type != "" {
		t := string(filter.Type)
		eventType = &t
	}

	where := `
		WHERE client_id = $1
			AND ($2::text IS NULL OR event_type = $2)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
			AND ($4::timestamptz IS NULL OR created_at <= $4)`
	args := []interface{}{filter.TenantID, eventType, filter.StartDate, filter.EndDate}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM client_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analytics events: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, event_type, phone, metadata, created_at
		FROM client_events`+where+`
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		append(args, filter.Limit, filter.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	items := make([]Event, 0, filter.Limit)
	for rows.Next() {
		var (
			ev        Event
			eventType string
			metadata  []byte
			createdAt time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.TenantID, &eventType, &ev.Phone, &metadata, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan analytics event: %w", err)
		}
		ev.Type = EventType(eventType)
		ev.CreatedAt = createdAt
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
