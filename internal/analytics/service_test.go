package analytics

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestService(t *testing.T, start time.Time) (*Service, *clock) {
	t.Helper()
	clk := &clock{now: start}
	log := logger.NewWithWriter("test", io.Discard)
	return NewService(NewMemoryStore(), time.UTC, log, WithClock(clk.Now)), clk
}

func TestRecordCountsLifetimeAndMonthly(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, svc.Record(ctx, tenant, EventMessage, "+1", nil))
	require.NoError(t, svc.Record(ctx, tenant, EventMessage, "+1", nil))
	require.NoError(t, svc.Record(ctx, tenant, EventLead, "+1", nil))

	stats, err := svc.GetStats(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, "2024-03", stats.CurrentMonth)
	require.Equal(t, Counters{Messages: 2, Leads: 1}, stats.Lifetime)
	require.Equal(t, Counters{Messages: 2, Leads: 1}, stats.Monthly)
}

func TestMonthRolloverResetsAllMonthlyCounters(t *testing.T) {
	svc, clk := newTestService(t, time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, svc.Record(ctx, tenant, EventMessage, "+1", nil))
	require.NoError(t, svc.Record(ctx, tenant, EventHandoff, "+1", nil))
	require.NoError(t, svc.Record(ctx, tenant, EventNewConversation, "+1", nil))

	clk.Set(time.Date(2024, 4, 1, 0, 1, 0, 0, time.UTC))
	require.NoError(t, svc.Record(ctx, tenant, EventLead, "+1", nil))

	stats, err := svc.GetStats(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, "2024-04", stats.CurrentMonth)
	require.Equal(t, Counters{Leads: 1}, stats.Monthly)
	require.Equal(t, Counters{Messages: 1, Handoffs: 1, NewConversations: 1, Leads: 1}, stats.Lifetime)
}

func TestGetStatsZeroesStaleMonthWithoutWriting(t *testing.T) {
	store := NewMemoryStore()
	clk := &clock{now: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
	svc := NewService(store, time.UTC, logger.NewWithWriter("test", io.Discard), WithClock(clk.Now))
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, svc.Record(ctx, tenant, EventMessage, "+1", nil))
	clk.Set(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	stats, err := svc.GetStats(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, Counters{}, stats.Monthly)
	require.Equal(t, int64(1), stats.Lifetime.Messages)

	raw, ok, err := store.Stats(ctx, tenant)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2024-01", raw.CurrentMonth, "read-time correction does not rewrite the row")
	require.Equal(t, int64(1), raw.Monthly.Messages)
}

func TestMonthLabelUsesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*3600)
	at := time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC)
	require.Equal(t, "2024-03", MonthLabel(at, loc))
	require.Equal(t, "2024-04", MonthLabel(at, time.UTC))
}

func TestConcurrentRecordsLoseNothing(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	ctx := context.Background()
	tenants := []uuid.UUID{uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for _, tenant := range tenants {
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(tenant uuid.UUID) {
				defer wg.Done()
				_ = svc.Record(ctx, tenant, EventMessage, "+1", nil)
			}(tenant)
		}
	}
	wg.Wait()

	for _, tenant := range tenants {
		stats, err := svc.GetStats(ctx, tenant)
		require.NoError(t, err)
		require.Equal(t, int64(100), stats.Lifetime.Messages)
		require.Equal(t, int64(100), stats.Monthly.Messages)
	}
}

func TestUnknownEventTypeIsRejected(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	require.Error(t, svc.Record(context.Background(), uuid.New(), EventType("BOGUS"), "", nil))
}

func TestEmptyTenantStats(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	tenant := uuid.New()
	stats, err := svc.GetStats(context.Background(), tenant)
	require.NoError(t, err)
	require.Equal(t, tenant, stats.TenantID)
	require.Equal(t, "2024-05", stats.CurrentMonth)
}

func TestSubscriberRecordsFromBus(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	bus := events.NewInMemoryBus(logger.NewWithWriter("test", io.Discard))
	svc.RegisterHandlers(bus)
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, bus.PublishSync(ctx, events.InboundMessageReceived{TenantID: tenant, ChatID: "1@c.us", Phone: "+1", IsFirstMessage: true}))
	require.NoError(t, bus.PublishSync(ctx, events.InboundMessageReceived{TenantID: tenant, ChatID: "1@c.us", Phone: "+1"}))
	require.NoError(t, bus.PublishSync(ctx, events.HumanHandoffDetected{TenantID: tenant, ChatID: "1@c.us", AgentID: "agent-7"}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadTracked{TenantID: tenant, ChatID: "1@c.us", Phone: "+1"}))

	stats, err := svc.GetStats(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, Counters{Messages: 2, NewConversations: 1, Handoffs: 1, Leads: 1}, stats.Lifetime)

	handoffs, total, err := svc.ListEvents(ctx, EventFilter{TenantID: tenant, Type: EventHandoff, Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "agent-7", handoffs[0].Metadata["agentId"])
}
