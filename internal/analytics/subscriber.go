package analytics

import (
	"context"

	"clinic_webhook_backend/internal/events"
)

// RegisterHandlers feeds the recorder from webhook and lead events. Handlers
// run detached on the bus; their errors are logged there.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.InboundMessageReceived{}.EventName(), events.HandlerFunc(s.onInboundMessage))
	bus.Subscribe(events.HumanHandoffDetected{}.EventName(), events.HandlerFunc(s.onHandoff))
	bus.Subscribe(events.LeadTracked{}.EventName(), events.HandlerFunc(s.onLeadTracked))
}

func (s *Service) onInboundMessage(ctx context.Context, event events.Event) error {
	e, ok := event.(events.InboundMessageReceived)
	if !ok {
		return nil
	}
	if err := s.Record(ctx, e.TenantID, EventMessage, e.Phone, nil); err != nil {
		return err
	}
	if e.IsFirstMessage {
		return s.Record(ctx, e.TenantID, EventNewConversation, e.Phone, nil)
	}
	return nil
}

func (s *Service) onHandoff(ctx context.Context, event events.Event) error {
	e, ok := event.(events.HumanHandoffDetected)
	if !ok {
		return nil
	}
	return s.Record(ctx, e.TenantID, EventHandoff, e.Phone, map[string]interface{}{"agentId": e.AgentID})
}

func (s *Service) onLeadTracked(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadTracked)
	if !ok {
		return nil
	}
	return s.Record(ctx, e.TenantID, EventLead, e.Phone, map[string]interface{}{"source": "meta_capi"})
}
