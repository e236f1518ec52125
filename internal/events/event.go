// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"clinic_webhook_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Webhook Domain Events
// =============================================================================

// InboundMessageReceived is published for every inbound message that passed
// tenant resolution and the handoff check.
type InboundMessageReceived struct {
	BaseEvent
	TenantID       uuid.UUID `json:"tenantId"`
	ChatID         string    `json:"chatId"`
	Phone          string    `json:"phone"`
	IsFirstMessage bool      `json:"isFirstMessage"`
}

func (e InboundMessageReceived) EventName() string { return "webhook.message.inbound" }

// HumanHandoffDetected is published when a human agent replies through the
// provider console, suppressing automation for the conversation.
type HumanHandoffDetected struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	ChatID   string    `json:"chatId"`
	Phone    string    `json:"phone"`
	AgentID  string    `json:"agentId"`
}

func (e HumanHandoffDetected) EventName() string { return "webhook.handoff.detected" }

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadTracked is published after a conversion event was accepted by the ad
// platform for a conversation.
type LeadTracked struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	ChatID   string    `json:"chatId"`
	Phone    string    `json:"phone"`
}

func (e LeadTracked) EventName() string { return "leads.lead.tracked" }
