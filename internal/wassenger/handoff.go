package wassenger

import (
	"context"
	"errors"

	"clinic_webhook_backend/internal/events"
	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/logger"

	"github.com/google/uuid"
)

// HandoffLabel marks chats a human agent has taken over.
const HandoffLabel = "humano"

// TenantLookup resolves tenants by id.
type TenantLookup interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (tenants.Tenant, bool, error)
}

// ChatLabeler attaches labels to provider chats.
type ChatLabeler interface {
	AddChatLabels(ctx context.Context, tenant tenants.Tenant, chatID string, labels []string) error
}

// HandoffLabeler labels a chat in the provider console when a human agent
// replies, so operators can filter conversations they own.
type HandoffLabeler struct {
	tenants TenantLookup
	labels  ChatLabeler
	log     *logger.Logger
}

// NewHandoffLabeler creates a HandoffLabeler.
func NewHandoffLabeler(lookup TenantLookup, labels ChatLabeler, log *logger.Logger) *HandoffLabeler {
	return &HandoffLabeler{tenants: lookup, labels: labels, log: log}
}

// RegisterHandlers subscribes the labeler to handoff events.
func (h *HandoffLabeler) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.HumanHandoffDetected{}.EventName(), events.HandlerFunc(h.onHandoff))
}

func (h *HandoffLabeler) onHandoff(ctx context.Context, event events.Event) error {
	e, ok := event.(events.HumanHandoffDetected)
	if !ok {
		return nil
	}

	tenant, found, err := h.tenants.ResolveByID(ctx, e.TenantID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	err = h.labels.AddChatLabels(ctx, tenant, e.ChatID, []string{HandoffLabel})
	if errors.Is(err, ErrMissingCredentials) {
		h.log.Debug("wassenger: handoff label skipped, no api key", "tenant", tenant.Slug)
		return nil
	}
	if err != nil {
		return err
	}

	h.log.Info("wassenger: chat labeled for human handoff", "tenant", tenant.Slug, "chatId", e.ChatID, "agent", e.AgentID)
	return nil
}
