package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"clinic_webhook_backend/internal/analytics"
	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/internal/leads"
	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/httpkit"
	"clinic_webhook_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testWindow = 150 * time.Millisecond

type testConfig struct{}

func (testConfig) GetCoalesceWindow() time.Duration       { return testWindow }
func (testConfig) GetCoalesceMaxMessages() int            { return 50 }
func (testConfig) GetCoalesceMaxBytes() int               { return 16384 }
func (testConfig) GetForwardTimeout() time.Duration       { return time.Second }
func (testConfig) GetDefaultHandoffWindow() time.Duration { return time.Hour }

type stubReader struct {
	tenants map[string]tenants.Tenant
	err     error
}

func (s stubReader) GetByDeviceID(_ context.Context, deviceID string) (tenants.Tenant, error) {
	if s.err != nil {
		return tenants.Tenant{}, s.err
	}
	t, ok := s.tenants[deviceID]
	if !ok {
		return tenants.Tenant{}, tenants.ErrTenantNotFound
	}
	return t, nil
}

func (s stubReader) GetByID(_ context.Context, id uuid.UUID) (tenants.Tenant, error) {
	for _, t := range s.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return tenants.Tenant{}, tenants.ErrTenantNotFound
}

// automation records POSTs to the tenant endpoint.
type automation struct {
	mu       sync.Mutex
	bodies   []string
	payloads []map[string]interface{}
	status   int
}

func (a *automation) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads = append(a.payloads, payload)
	if data, ok := payload["data"].(map[string]interface{}); ok {
		body, _ := data["body"].(string)
		a.bodies = append(a.bodies, body)
	}
	if a.status != 0 {
		w.WriteHeader(a.status)
	}
}

func (a *automation) received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.bodies...)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []leads.Job
}

func (d *recordingDispatcher) DispatchLead(_ context.Context, job leads.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

type harness struct {
	engine     *gin.Engine
	module     *Module
	tenant     tenants.Tenant
	endpoint   *automation
	analytics  *analytics.Service
	bus        *events.InMemoryBus
	gate       *leads.Service
	dispatcher *recordingDispatcher
}

func newHarness(t *testing.T, mutate func(*tenants.Tenant), readerErr error) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewWithWriter("test", io.Discard)

	endpoint := &automation{}
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	tenant := tenants.Tenant{
		ID:         uuid.New(),
		Slug:       "t1",
		DeviceID:   "D1",
		WebhookURL: srv.URL + "/hook",
		IsActive:   true,
	}
	if mutate != nil {
		mutate(&tenant)
	}

	resolver := tenants.NewResolver(stubReader{tenants: map[string]tenants.Tenant{"D1": tenant}, err: readerErr}, log)
	bus := events.NewInMemoryBus(log)
	stats := analytics.NewService(analytics.NewMemoryStore(), time.UTC, log)
	stats.RegisterHandlers(bus)

	dispatcher := &recordingDispatcher{}
	gate := leads.NewService(leads.NewMemoryClaimStore(time.Hour), dispatcher, nil, log)

	module := NewModule(testConfig{}, "US", resolver, gate, bus, nil, log)

	engine := gin.New()
	engine.Use(httpkit.Recovery(log))
	engine.POST("/webhooks/whatsapp", module.handler.HandleWhatsApp)

	return &harness{
		engine:     engine,
		module:     module,
		tenant:     tenant,
		endpoint:   endpoint,
		analytics:  stats,
		bus:        bus,
		gate:       gate,
		dispatcher: dispatcher,
	}
}

func (h *harness) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.engine.ServeHTTP(rec, req)
	return rec
}

func (h *harness) leadJobs(t *testing.T) []leads.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.gate.Wait(ctx))
	h.dispatcher.mu.Lock()
	defer h.dispatcher.mu.Unlock()
	return append([]leads.Job(nil), h.dispatcher.jobs...)
}

func (h *harness) stats(t *testing.T) analytics.Stats {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.bus.Wait(ctx))
	stats, err := h.analytics.GetStats(context.Background(), h.tenant.ID)
	require.NoError(t, err)
	return stats
}

func inbound(device, from, body string, first bool, metadata string) string {
	if metadata == "" {
		metadata = "[]"
	}
	return `{"event":"message:in:new","device":{"id":"` + device + `"},"data":{` +
		`"from":"` + from + `","fromNumber":"+` + strings.TrimSuffix(from, "@c.us") + `","body":"` + body + `",` +
		`"flow":"inbound","meta":{"isFirstMessage":` + boolJSON(first) + `},` +
		`"chat":{"contact":{"metadata":` + metadata + `}}}}`
}

func outbound(device, to, agent string) string {
	return `{"event":"message:out:new","device":{"id":"` + device + `"},"data":{"to":"` + to + `","body":"hi","agent":"` + agent + `"}}`
}

func boolJSON(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func TestBurstIsForwardedOnceAfterSilence(t *testing.T) {
	h := newHarness(t, nil, nil)

	for i := 0; i < 3; i++ {
		rec := h.post(t, inbound("D1", "123@c.us", "a", false, ""))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Buffered", rec.Body.String())
		time.Sleep(testWindow / 3)
	}
	require.Empty(t, h.endpoint.received(), "no forward while the burst continues")

	require.Eventually(t, func() bool { return len(h.endpoint.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"a a a"}, h.endpoint.received())

	h.endpoint.mu.Lock()
	forwarded := h.endpoint.payloads[0]
	h.endpoint.mu.Unlock()
	require.Equal(t, "message:in:new", forwarded["event"])
	require.Equal(t, "123@c.us", forwarded["data"].(map[string]interface{})["from"])

	time.Sleep(2 * testWindow)
	require.Len(t, h.endpoint.received(), 1)

	stats := h.stats(t)
	require.Equal(t, int64(3), stats.Lifetime.Messages)
}

func TestSeparatedMessagesForwardSeparately(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.post(t, inbound("D1", "123@c.us", "uno", false, ""))
	require.Eventually(t, func() bool { return len(h.endpoint.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	h.post(t, inbound("D1", "123@c.us", "dos", false, ""))
	require.Eventually(t, func() bool { return len(h.endpoint.received()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{"uno", "dos"}, h.endpoint.received())
}

func TestUnknownDeviceIsAcknowledgedAndDropped(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.post(t, inbound("unknown", "123@c.us", "hola", true, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.Equal(t, 0, h.module.Pending())

	time.Sleep(2 * testWindow)
	require.Empty(t, h.endpoint.received())
	require.Equal(t, analytics.Counters{}, h.stats(t).Lifetime)
	require.Empty(t, h.leadJobs(t))
}

func TestHumanHandoffSuppressesAutomation(t *testing.T) {
	h := newHarness(t, func(t *tenants.Tenant) { t.HandoffWindow = 300 * time.Millisecond }, nil)

	rec := h.post(t, outbound("D1", "123@c.us", "agent-1"))
	require.Equal(t, "OK", rec.Body.String())

	rec = h.post(t, inbound("D1", "123@c.us", "hola", false, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Suppressed by Human Handoff", rec.Body.String())
	require.Equal(t, 0, h.module.Pending())

	// Another conversation of the same tenant is unaffected.
	rec = h.post(t, inbound("D1", "456@c.us", "hola", false, ""))
	require.Equal(t, "Buffered", rec.Body.String())

	time.Sleep(350 * time.Millisecond)
	rec = h.post(t, inbound("D1", "123@c.us", "sigo aqui", false, ""))
	require.Equal(t, "Buffered", rec.Body.String())

	require.Eventually(t, func() bool { return len(h.endpoint.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []string{"hola", "sigo aqui"}, h.endpoint.received())

	stats := h.stats(t)
	require.Equal(t, int64(1), stats.Lifetime.Handoffs)
	require.Equal(t, int64(2), stats.Lifetime.Messages)
}

func TestBotRepliesDoNotSuppress(t *testing.T) {
	h := newHarness(t, nil, nil)

	require.Equal(t, "OK", h.post(t, outbound("D1", "123@c.us", "")).Body.String())
	require.Equal(t, "Buffered", h.post(t, inbound("D1", "123@c.us", "hola", false, "")).Body.String())
	require.Equal(t, int64(0), h.stats(t).Lifetime.Handoffs)
}

func TestLeadTrackingFiresOncePerConversation(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.post(t, inbound("D1", "123@c.us", "hola", true, ""))
	require.Empty(t, h.leadJobs(t), "first message is a cold contact")

	h.post(t, inbound("D1", "123@c.us", "quiero una cita", false, ""))
	jobs := h.leadJobs(t)
	require.Len(t, jobs, 1)
	require.Equal(t, leads.Job{TenantID: h.tenant.ID, ChatID: "123@c.us", Phone: "+123"}, jobs[0])

	h.post(t, inbound("D1", "123@c.us", "gracias", false, `[{"key":"lead_tracked","value":"true"}]`))
	h.post(t, inbound("D1", "123@c.us", "otra pregunta", false, ""))
	require.Len(t, h.leadJobs(t), 1, "tag or claim blocks every later reply")

	stats := h.stats(t)
	require.Equal(t, int64(4), stats.Lifetime.Messages)
	require.Equal(t, int64(1), stats.Lifetime.NewConversations)
}

func TestMalformedDeliveriesAreAcknowledged(t *testing.T) {
	h := newHarness(t, nil, nil)

	cases := []string{
		`not json`,
		`{"event":"message:in:new","device":{"id":"D1"},"data":{"from":"123@c.us","fromNumber":"+123","body":"  "}}`,
		`{"event":"message:in:new","device":{"id":"D1"},"data":{"body":"hola"}}`,
		`{"event":"message:ack","device":{"id":"D1"},"data":{}}`,
		`{}`,
	}
	for _, body := range cases {
		rec := h.post(t, body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		require.Equal(t, "OK", rec.Body.String(), body)
	}
	require.Equal(t, 0, h.module.Pending())
}

func TestTenantStoreFailureReturns500(t *testing.T) {
	h := newHarness(t, nil, errors.New("connection refused"))

	rec := h.post(t, inbound("D1", "123@c.us", "hola", false, ""))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = h.post(t, outbound("D1", "123@c.us", "agent-1"))
	require.Equal(t, http.StatusOK, rec.Code, "outbound deliveries are always acknowledged")
}

func TestForwardFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.endpoint.status = http.StatusBadGateway

	h.post(t, inbound("D1", "123@c.us", "hola", false, ""))
	require.Eventually(t, func() bool { return len(h.endpoint.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testWindow)
	require.Len(t, h.endpoint.received(), 1)
	require.Equal(t, 0, h.module.Pending())
}

func TestTenantWithoutAutomationIsNotBuffered(t *testing.T) {
	h := newHarness(t, func(t *tenants.Tenant) { t.WebhookURL = "" }, nil)

	rec := h.post(t, inbound("D1", "123@c.us", "hola", false, ""))
	require.Equal(t, "OK", rec.Body.String())
	require.Equal(t, 0, h.module.Pending())
	require.Equal(t, int64(1), h.stats(t).Lifetime.Messages)
}

func TestDrainForwardsPendingOnShutdown(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.post(t, inbound("D1", "123@c.us", "a", false, ""))
	h.post(t, inbound("D1", "123@c.us", "b", false, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.module.Drain(ctx))
	require.Equal(t, []string{"a b"}, h.endpoint.received())
}

func TestForwardKeepsBodiesAsDelivered(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.post(t, inbound("D1", "123@c.us", "  hola ", false, ""))
	h.post(t, inbound("D1", "123@c.us", "cita\\n", false, ""))
	require.Eventually(t, func() bool { return len(h.endpoint.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"  hola  cita\n"}, h.endpoint.received())
}
