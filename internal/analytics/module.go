package analytics

import (
	"time"

	"clinic_webhook_backend/internal/events"
	apphttp "clinic_webhook_backend/internal/http"
	"clinic_webhook_backend/platform/logger"
	"clinic_webhook_backend/platform/validator"
)

// Module wires the analytics recorder and its admin routes.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule builds the module on store and subscribes it to bus.
func NewModule(store Store, loc *time.Location, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := NewService(store, loc, log)
	svc.RegisterHandlers(bus)
	return &Module{service: svc, handler: NewHandler(svc, val)}
}

func (m *Module) Name() string {
	return "analytics"
}

// Service exposes the recorder to other modules.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	clients := ctx.Admin.Group("/clients/:id")
	clients.GET("/analytics", m.handler.GetOverview)
	clients.GET("/events", m.handler.ListEvents)
}

var _ apphttp.Module = (*Module)(nil)
