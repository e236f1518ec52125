package webhook

import (
	"context"

	"clinic_webhook_backend/internal/coalescer"
	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/internal/handoff"
	apphttp "clinic_webhook_backend/internal/http"
	"clinic_webhook_backend/platform/config"
	"clinic_webhook_backend/platform/logger"
	"clinic_webhook_backend/platform/metrics"
)

// Module is the webhook ingestion bounded context implementing http.Module.
type Module struct {
	handler *Handler
	router  *Router
	buffer  *coalescer.Buffer[ForwardContext]
	handoff *handoff.Tracker
}

// NewModule wires the handoff tracker, coalescer and forwarder behind the
// webhook endpoint.
func NewModule(cfg config.WebhookConfig, region string, resolver TenantResolver, gate LeadGate, bus events.Bus, m *metrics.Metrics, log *logger.Logger) *Module {
	forwarder := NewForwarder(cfg.GetForwardTimeout(), m, log)
	buffer := coalescer.New[ForwardContext](coalescer.Options{
		Window:      cfg.GetCoalesceWindow(),
		MaxMessages: cfg.GetCoalesceMaxMessages(),
		MaxBytes:    cfg.GetCoalesceMaxBytes(),
	}, forwarder.Flush, m, log)
	tracker := handoff.NewTracker()

	router := NewRouter(resolver, tracker, buffer, gate, bus, m, RouterOptions{
		DefaultHandoffWindow: cfg.GetDefaultHandoffWindow(),
		PhoneRegion:          region,
	}, log)

	return &Module{
		handler: NewHandler(router, log),
		router:  router,
		buffer:  buffer,
		handoff: tracker,
	}
}

func (m *Module) Name() string {
	return "webhook"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/whatsapp", m.handler.HandleWhatsApp)
}

// Pending returns the number of conversations with buffered messages.
func (m *Module) Pending() int {
	return m.buffer.Pending()
}

// Drain forwards every pending buffer; called on shutdown.
func (m *Module) Drain(ctx context.Context) error {
	return m.buffer.Drain(ctx)
}

var _ apphttp.Module = (*Module)(nil)
