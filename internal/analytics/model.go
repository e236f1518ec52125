// Package analytics records per-tenant business events and keeps lifetime
// and current-month counters for the admin dashboard.
package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of a recorded event.
type EventType string

const (
	EventLead            EventType = "LEAD"
	EventAppointment     EventType = "APPOINTMENT"
	EventMessage         EventType = "MESSAGE"
	EventHandoff         EventType = "HANDOFF"
	EventNewConversation EventType = "NEW_CONVERSATION"
)

// EventTypes lists every kind in counter order.
var EventTypes = []EventType{EventLead, EventAppointment, EventMessage, EventHandoff, EventNewConversation}

// Valid reports whether t is a known kind.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MonthLabelFormat is the layout of the current-month label.
const MonthLabelFormat = "2006-01"

// MonthLabel returns the month label of at in loc.
func MonthLabel(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return at.In(loc).Format(MonthLabelFormat)
}

// Event is one immutable audit record.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	TenantID  uuid.UUID              `json:"clientId"`
	Type      EventType              `json:"eventType"`
	Phone     string                 `json:"phone"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Counters holds one value per event kind.
type Counters struct {
	Leads            int64 `json:"leads"`
	Appointments     int64 `json:"appointments"`
	Messages         int64 `json:"messages"`
	Handoffs         int64 `json:"handoffs"`
	NewConversations int64 `json:"newConversations"`
}

// Add increments the counter for kind by n.
func (c *Counters) Add(kind EventType, n int64) {
	switch kind {
	case EventLead:
		c.Leads += n
	case EventAppointment:
		c.Appointments += n
	case EventMessage:
		c.Messages += n
	case EventHandoff:
		c.Handoffs += n
	case EventNewConversation:
		c.NewConversations += n
	default:
		panic(fmt.Sprintf("analytics: unknown event type %q", kind))
	}
}

// Stats is the counter row for one tenant.
type Stats struct {
	TenantID     uuid.UUID `json:"clientId"`
	CurrentMonth string    `json:"currentMonth"`
	Lifetime     Counters  `json:"lifetime"`
	Monthly      Counters  `json:"monthly"`
}

// EventFilter selects a page of events.
type EventFilter struct {
	TenantID  uuid.UUID
	Type      EventType
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// Offset returns the row offset of the page.
func (f EventFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
