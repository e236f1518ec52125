package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTenantNotFound is returned when no active tenant matches a lookup.
var ErrTenantNotFound = errors.New("tenant not found")

const defaultTimezone = "America/Mexico_City"

const tenantColumns = `
	id, slug, name, wassenger_device_id, webhook_url, is_active, handoff_window_secs,
	timezone, meta_pixel_id, meta_access_token, wassenger_api_key, created_at, updated_at`

// Reader provides tenant lookups.
type Reader interface {
	GetByDeviceID(ctx context.Context, deviceID string) (Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (Tenant, error)
}

// Repository implements Reader with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new tenant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Reader = (*Repository)(nil)

// GetByDeviceID returns the active tenant owning deviceID. The lookup hits the
// unique index on wassenger_device_id.
func (r *Repository) GetByDeviceID(ctx context.Context, deviceID string) (Tenant, error) {
	query := `SELECT` + tenantColumns + `
		FROM clients
		WHERE wassenger_device_id = $1 AND is_active = true`

	return r.scanOne(r.pool.QueryRow(ctx, query, deviceID))
}

// GetByID returns the active tenant with the given id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	query := `SELECT` + tenantColumns + `
		FROM clients
		WHERE id = $1 AND is_active = true`

	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// Upsert inserts or updates a tenant by slug.
func (r *Repository) Upsert(ctx context.Context, params UpsertParams) (Tenant, error) {
	isActive := true
	if params.IsActive != nil {
		isActive = *params.IsActive
	}
	timezone := params.Timezone
	if timezone == "" {
		timezone = defaultTimezone
	}

	query := `
		INSERT INTO clients (
			slug, name, wassenger_device_id, webhook_url, is_active, handoff_window_secs,
			timezone, meta_pixel_id, meta_access_token, wassenger_api_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			wassenger_device_id = EXCLUDED.wassenger_device_id,
			webhook_url = EXCLUDED.webhook_url,
			is_active = EXCLUDED.is_active,
			handoff_window_secs = EXCLUDED.handoff_window_secs,
			timezone = EXCLUDED.timezone,
			meta_pixel_id = EXCLUDED.meta_pixel_id,
			meta_access_token = EXCLUDED.meta_access_token,
			wassenger_api_key = EXCLUDED.wassenger_api_key,
			updated_at = now()
		RETURNING` + tenantColumns

	tenant, err := r.scanOne(r.pool.QueryRow(ctx, query,
		params.Slug, params.Name, params.DeviceID, params.WebhookURL, isActive,
		int(params.HandoffWindow/time.Second), timezone,
		params.MetaPixelID, params.MetaAccessToken, params.WassengerAPIKey,
	))
	if err != nil {
		return Tenant{}, fmt.Errorf("upsert tenant %s: %w", params.Slug, err)
	}
	return tenant, nil
}

func (r *Repository) scanOne(row pgx.Row) (Tenant, error) {
	var (
		t           Tenant
		handoffSecs int
	)
	err := row.Scan(
		&t.ID, &t.Slug, &t.Name, &t.DeviceID, &t.WebhookURL, &t.IsActive, &handoffSecs,
		&t.Timezone, &t.MetaPixelID, &t.MetaAccessToken, &t.WassengerAPIKey, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	t.HandoffWindow = time.Duration(handoffSecs) * time.Second
	return t, nil
}
