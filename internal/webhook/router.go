package webhook

import (
	"context"
	"strings"
	"time"

	"clinic_webhook_backend/internal/coalescer"
	"clinic_webhook_backend/internal/conversation"
	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/internal/handoff"
	"clinic_webhook_backend/internal/leads"
	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/logger"
	"clinic_webhook_backend/platform/phone"
)

// Outcome is the acknowledgement sent back to the provider.
type Outcome struct {
	// Response is the plain-text body returned with 200.
	Response string
	// Label is the metrics/log outcome.
	Label string
}

var (
	OutcomeIgnored       = Outcome{Response: "OK", Label: "ignored"}
	OutcomeUnknownDevice = Outcome{Response: "OK", Label: "unknown_device"}
	OutcomeHandoff       = Outcome{Response: "OK", Label: "handoff"}
	OutcomeAccepted      = Outcome{Response: "OK", Label: "accepted"}
	OutcomeBuffered      = Outcome{Response: "Buffered", Label: "buffered"}
	OutcomeSuppressed    = Outcome{Response: "Suppressed by Human Handoff", Label: "suppressed"}
)

// TenantResolver maps device ids to tenants.
type TenantResolver interface {
	ResolveByDeviceID(ctx context.Context, deviceID string) (tenants.Tenant, bool, error)
}

// LeadGate decides and dispatches lead tracking for inbound replies.
type LeadGate interface {
	MaybeTrack(ctx context.Context, job leads.Job, isFirstMessage bool, metadata []leads.MetadataEntry) bool
}

// ForwardContext travels with a buffered message to the flush.
type ForwardContext struct {
	Tenant tenants.Tenant
	// Raw is the most recent payload of the burst, as delivered.
	Raw []byte
}

// EventObserver counts webhook deliveries.
type EventObserver interface {
	WebhookEvent(event, outcome string)
}

// RouterOptions configures a Router.
type RouterOptions struct {
	DefaultHandoffWindow time.Duration
	PhoneRegion          string
}

// Router sequences tenant resolution, handoff state, analytics, lead tracking
// and coalescing for each delivery. It never waits on forwarding.
type Router struct {
	tenants  TenantResolver
	handoff  *handoff.Tracker
	buffer   *coalescer.Buffer[ForwardContext]
	leads    LeadGate
	bus      events.Bus
	observer EventObserver
	opts     RouterOptions
	log      *logger.Logger
}

// NewRouter creates a Router.
func NewRouter(resolver TenantResolver, tracker *handoff.Tracker, buffer *coalescer.Buffer[ForwardContext], gate LeadGate, bus events.Bus, observer EventObserver, opts RouterOptions, log *logger.Logger) *Router {
	if opts.DefaultHandoffWindow <= 0 {
		opts.DefaultHandoffWindow = 2 * time.Hour
	}
	return &Router{
		tenants:  resolver,
		handoff:  tracker,
		buffer:   buffer,
		leads:    gate,
		bus:      bus,
		observer: observer,
		opts:     opts,
		log:      log,
	}
}

// Route handles one raw delivery. The only error it returns is a tenant store
// failure on the inbound path, which the caller turns into a 500 so the
// provider redelivers.
func (r *Router) Route(ctx context.Context, raw []byte) (Outcome, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		r.log.Warn("webhook: unparseable payload acknowledged", "error", err)
		r.observe("invalid", OutcomeIgnored)
		return OutcomeIgnored, nil
	}

	var outcome Outcome
	switch payload.Event {
	case EventMessageOutNew:
		outcome = r.routeOutbound(ctx, payload)
	case EventMessageInNew:
		outcome, err = r.routeInbound(ctx, payload, raw)
		if err != nil {
			r.observe(payload.Event, Outcome{Label: "error"})
			return Outcome{}, err
		}
	default:
		r.observe("other", OutcomeIgnored)
		return OutcomeIgnored, nil
	}

	r.observe(payload.Event, outcome)
	r.log.WebhookEvent(payload.Event, payload.Device.ID, outcome.Label)
	return outcome, nil
}

func (r *Router) routeOutbound(ctx context.Context, p Payload) Outcome {
	if !p.Data.Agent.Present() {
		return OutcomeIgnored
	}

	tenant, ok, err := r.tenants.ResolveByDeviceID(ctx, p.Device.ID)
	if err != nil {
		r.log.Error("webhook: tenant lookup failed on handoff", "deviceId", p.Device.ID, "error", err)
		return OutcomeIgnored
	}
	if !ok {
		return OutcomeUnknownDevice
	}

	chatID := phone.ChatID(p.Data.To, p.Data.ToNumber, r.opts.PhoneRegion)
	if chatID == "" {
		return OutcomeIgnored
	}

	key := conversation.NewKey(tenant.ID, chatID)
	r.handoff.MarkHumanReply(key, tenant.HandoffWindowOr(r.opts.DefaultHandoffWindow))
	r.log.Info("webhook: human handoff detected", "tenant", tenant.Slug, "chatId", chatID, "agent", p.Data.Agent.ID)

	r.publish(ctx, events.HumanHandoffDetected{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenant.ID,
		ChatID:    chatID,
		Phone:     p.Data.ToNumber,
		AgentID:   p.Data.Agent.ID,
	})
	return OutcomeHandoff
}

func (r *Router) routeInbound(ctx context.Context, p Payload, raw []byte) (Outcome, error) {
	sender := strings.TrimSpace(p.Data.FromNumber)
	if sender == "" {
		sender = strings.TrimSpace(p.Data.From)
	}
	if sender == "" || strings.TrimSpace(p.Data.Body) == "" {
		return OutcomeIgnored, nil
	}

	tenant, ok, err := r.tenants.ResolveByDeviceID(ctx, p.Device.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return OutcomeUnknownDevice, nil
	}

	chatID := phone.ChatID(p.Data.From, p.Data.FromNumber, r.opts.PhoneRegion)
	if chatID == "" {
		return OutcomeIgnored, nil
	}
	key := conversation.NewKey(tenant.ID, chatID)

	if r.handoff.IsSuppressed(key) {
		return OutcomeSuppressed, nil
	}

	r.publish(ctx, events.InboundMessageReceived{
		BaseEvent:      events.NewBaseEvent(),
		TenantID:       tenant.ID,
		ChatID:         chatID,
		Phone:          sender,
		IsFirstMessage: p.Data.Meta.IsFirstMessage,
	})

	if r.leads != nil {
		r.leads.MaybeTrack(ctx, leads.Job{TenantID: tenant.ID, ChatID: chatID, Phone: sender},
			p.Data.Meta.IsFirstMessage, p.Data.Chat.Contact.Metadata)
	}

	if !tenant.HasAutomation() {
		r.log.Debug("webhook: tenant has no automation endpoint", "tenant", tenant.Slug)
		return OutcomeAccepted, nil
	}

	r.buffer.Push(key, p.Data.Body, ForwardContext{Tenant: tenant, Raw: raw})
	return OutcomeBuffered, nil
}

func (r *Router) publish(ctx context.Context, event events.Event) {
	if r.bus != nil {
		r.bus.Publish(ctx, event)
	}
}

func (r *Router) observe(event string, outcome Outcome) {
	if r.observer != nil {
		r.observer.WebhookEvent(event, outcome.Label)
	}
}
