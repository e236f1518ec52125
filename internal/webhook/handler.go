package webhook

import (
	"io"
	"net/http"

	"clinic_webhook_backend/platform/httpkit"
	"clinic_webhook_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const maxPayloadBytes = 1 << 20

// Handler exposes the provider webhook endpoint.
type Handler struct {
	router *Router
	log    *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(router *Router, log *logger.Logger) *Handler {
	return &Handler{router: router, log: log}
}

// HandleWhatsApp processes one provider delivery.
// POST /webhooks/whatsapp
func (h *Handler) HandleWhatsApp(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	if err != nil {
		h.log.Warn("webhook: failed to read body", "error", err)
		httpkit.Text(c, http.StatusOK, OutcomeIgnored.Response)
		return
	}

	outcome, err := h.router.Route(c.Request.Context(), raw)
	if err != nil {
		_ = c.Error(err)
		httpkit.Text(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpkit.Text(c, http.StatusOK, outcome.Response)
}
