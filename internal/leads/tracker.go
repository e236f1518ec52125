package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/internal/marketing"
	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/logger"

	"github.com/google/uuid"
)

// Lead tracking results reported to metrics.
const (
	ResultDispatched = "dispatched"
	ResultDuplicate  = "duplicate"
	ResultTracked    = "tracked"
	ResultSkipped    = "skipped"
	ResultFailed     = "failed"
)

// Job identifies one conversation whose lead event should fire.
type Job struct {
	TenantID uuid.UUID `json:"tenantId"`
	ChatID   string    `json:"chatId"`
	Phone    string    `json:"phone"`
}

// ClaimKey is the dedup key for the job's conversation.
func (j Job) ClaimKey() string {
	return j.TenantID.String() + ":" + j.ChatID
}

// TenantLookup resolves tenants by id.
type TenantLookup interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (tenants.Tenant, bool, error)
}

// ConversionTracker sends the ad-platform lead event.
type ConversionTracker interface {
	TrackLead(ctx context.Context, tenant tenants.Tenant, phone string) (marketing.Result, error)
}

// MetadataWriter persists contact metadata at the provider.
type MetadataWriter interface {
	SetContactMetadata(ctx context.Context, tenant tenants.Tenant, chatID string, values map[string]string) error
}

// ResultObserver counts tracking outcomes.
type ResultObserver interface {
	LeadTracking(result string)
}

// Tracker runs one lead job end to end.
type Tracker struct {
	tenants  TenantLookup
	capi     ConversionTracker
	metadata MetadataWriter
	claims   ClaimStore
	bus      events.Bus
	observer ResultObserver
	log      *logger.Logger
}

// NewTracker creates a Tracker.
func NewTracker(lookup TenantLookup, capi ConversionTracker, metadata MetadataWriter, claims ClaimStore, bus events.Bus, observer ResultObserver, log *logger.Logger) *Tracker {
	return &Tracker{
		tenants:  lookup,
		capi:     capi,
		metadata: metadata,
		claims:   claims,
		bus:      bus,
		observer: observer,
		log:      log,
	}
}

// Track sends the lead event and, on success, tags the contact and publishes
// LeadTracked. A failure to write the tag is logged only: the claim still
// blocks duplicates until it expires.
func (t *Tracker) Track(ctx context.Context, job Job) error {
	tenant, ok, err := t.tenants.ResolveByID(ctx, job.TenantID)
	if err != nil {
		t.observe(ResultFailed)
		return fmt.Errorf("resolve tenant %s: %w", job.TenantID, err)
	}
	if !ok {
		t.observe(ResultSkipped)
		t.log.Warn("lead tracking skipped: tenant not found", "tenantId", job.TenantID)
		return nil
	}

	if _, err := t.capi.TrackLead(ctx, tenant, job.Phone); err != nil {
		if errors.Is(err, marketing.ErrNotConfigured) {
			t.observe(ResultSkipped)
			t.log.Info("lead tracking skipped: conversions api not configured", "tenant", tenant.Slug)
			return nil
		}
		t.observe(ResultFailed)
		return err
	}
	t.observe(ResultTracked)

	if err := t.metadata.SetContactMetadata(ctx, tenant, job.ChatID, map[string]string{MetadataKeyLeadTracked: "true"}); err != nil {
		t.log.Warn("lead tracked but tag write failed", "tenant", tenant.Slug, "chatId", job.ChatID, "error", err)
	}

	if t.bus != nil {
		t.bus.Publish(ctx, events.LeadTracked{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  tenant.ID,
			ChatID:    job.ChatID,
			Phone:     job.Phone,
		})
	}
	return nil
}

// Abandon releases the job's claim after its final failed attempt so a later
// reply can try again.
func (t *Tracker) Abandon(ctx context.Context, job Job, cause error) {
	t.log.Error("lead tracking abandoned", "tenantId", job.TenantID, "chatId", job.ChatID, "error", cause)
	if err := t.claims.Release(ctx, job.ClaimKey()); err != nil {
		t.log.Warn("failed to release lead claim", "key", job.ClaimKey(), "error", err)
	}
}

func (t *Tracker) observe(result string) {
	if t.observer != nil {
		t.observer.LeadTracking(result)
	}
}

// Dispatcher hands a job to whatever runs it out of band.
type Dispatcher interface {
	DispatchLead(ctx context.Context, job Job) error
}

// AsyncDispatcher runs jobs on detached goroutines in this process. Used when
// no Redis queue is configured.
type AsyncDispatcher struct {
	tracker *Tracker
	timeout time.Duration
}

// NewAsyncDispatcher creates an in-process dispatcher.
func NewAsyncDispatcher(tracker *Tracker, timeout time.Duration) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncDispatcher{tracker: tracker, timeout: timeout}
}

func (d *AsyncDispatcher) DispatchLead(ctx context.Context, job Job) error {
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.tracker.Track(runCtx, job); err != nil {
			d.tracker.Abandon(runCtx, job, err)
		}
	}()
	return nil
}

var _ Dispatcher = (*AsyncDispatcher)(nil)
