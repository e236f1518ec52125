package analytics

import (
	"strings"
	"time"

	"clinic_webhook_backend/platform/apperr"
	"clinic_webhook_backend/platform/httpkit"
	"clinic_webhook_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	errInvalidID     = "invalid client id"
	errInvalidQuery  = "invalid query parameters"
)

// Handler serves the admin analytics endpoints.
type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GetOverview handles GET /api/v1/admin/clients/:id/analytics
func (h *Handler) GetOverview(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(errInvalidID))
		return
	}

	stats, err := h.svc.GetStats(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	recent, err := h.svc.RecentEvents(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, OverviewResponse{Stats: stats, RecentEvents: recent})
}

// ListEvents handles GET /api/v1/admin/clients/:id/events
func (h *Handler) ListEvents(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(errInvalidID))
		return
	}

	var query ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(errInvalidQuery))
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.HandleError(c, apperr.Validation(errInvalidQuery).WithDetails(validator.FieldErrors(err)))
		return
	}

	filter, err := buildFilter(tenantID, query)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	items, total, err := h.svc.ListEvents(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	httpkit.OK(c, ListEventsResponse{
		Data: items,
		Meta: PageMeta{Total: total, Page: filter.Page, Limit: filter.Limit, TotalPages: totalPages},
	})
}

func buildFilter(tenantID uuid.UUID, query ListEventsQuery) (EventFilter, error) {
	filter := EventFilter{
		TenantID: tenantID,
		Type:     EventType(query.EventType),
		Page:     query.Page,
		Limit:    query.Limit,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}

	start, err := parseDate(query.StartDate, false)
	if err != nil {
		return EventFilter{}, apperr.Validation("invalid startDate").WithDetails(err.Error())
	}
	end, err := parseDate(query.EndDate, true)
	if err != nil {
		return EventFilter{}, apperr.Validation("invalid endDate").WithDetails(err.Error())
	}
	if start != nil && end != nil && end.Before(*start) {
		return EventFilter{}, apperr.Validation("endDate must not be before startDate")
	}
	filter.StartDate = start
	filter.EndDate = end
	return filter, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
