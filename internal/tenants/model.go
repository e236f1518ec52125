// Package tenants owns clinic tenant records and the device-id resolver used
// on every webhook delivery.
package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a clinic connected to one provider device.
type Tenant struct {
	ID              uuid.UUID
	Slug            string
	Name            string
	DeviceID        string
	WebhookURL      string
	IsActive        bool
	HandoffWindow   time.Duration
	Timezone        string
	MetaPixelID     string
	MetaAccessToken string
	WassengerAPIKey string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasAutomation reports whether the tenant has a forwarding target.
func (t Tenant) HasAutomation() bool {
	return t.WebhookURL != ""
}

// HandoffWindowOr returns the tenant's suppression window, or fallback when
// the tenant does not override it.
func (t Tenant) HandoffWindowOr(fallback time.Duration) time.Duration {
	if t.HandoffWindow > 0 {
		return t.HandoffWindow
	}
	return fallback
}

// UpsertParams is the writable subset of a tenant, keyed by slug.
type UpsertParams struct {
	Slug            string        `yaml:"slug" validate:"required,min=2,max=64"`
	Name            string        `yaml:"name" validate:"required,max=200"`
	DeviceID        string        `yaml:"deviceId" validate:"required"`
	WebhookURL      string        `yaml:"webhookUrl" validate:"omitempty,url"`
	IsActive        *bool         `yaml:"isActive"`
	HandoffWindow   time.Duration `yaml:"handoffWindow" validate:"gte=0"`
	Timezone        string        `yaml:"timezone"`
	MetaPixelID     string        `yaml:"metaPixelId"`
	MetaAccessToken string        `yaml:"metaAccessToken"`
	WassengerAPIKey string        `yaml:"wassengerApiKey"`
}
