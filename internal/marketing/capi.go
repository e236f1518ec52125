// Package marketing sends conversion events to the Meta Conversions API.
package marketing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/config"
	"clinic_webhook_backend/platform/logger"
	"clinic_webhook_backend/platform/phone"

	"golang.org/x/time/rate"
)

// ErrNotConfigured means the tenant has no pixel or access token; callers
// treat it as a skip, not a failure.
var ErrNotConfigured = errors.New("meta conversions api not configured for tenant")

const (
	eventLead         = "Lead"
	actionSourceChat  = "chat"
	defaultRatePerSec = 10
)

// Result is the API's acknowledgement of one event batch.
type Result struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
}

type userData struct {
	Phones []string `json:"ph"`
}

type serverEvent struct {
	EventName    string   `json:"event_name"`
	EventTime    int64    `json:"event_time"`
	ActionSource string   `json:"action_source"`
	UserData     userData `json:"user_data"`
}

type eventsRequest struct {
	Data          []serverEvent `json:"data"`
	AccessToken   string        `json:"access_token"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// Client posts server events. Outbound calls share one limiter across all
// tenants.
type Client struct {
	graphURL      string
	version       string
	testEventCode string
	region        string
	limiter       *rate.Limiter
	http          *http.Client
	now           func() time.Time
	log           *logger.Logger
}

// NewClient creates a Conversions API client.
func NewClient(cfg config.MetaConfig, region string, log *logger.Logger) *Client {
	return &Client{
		graphURL:      strings.TrimRight(cfg.GetMetaGraphURL(), "/"),
		version:       cfg.GetMetaAPIVersion(),
		testEventCode: cfg.GetMetaTestEventCode(),
		region:        region,
		limiter:       rate.NewLimiter(rate.Limit(defaultRatePerSec), defaultRatePerSec),
		http:          &http.Client{Timeout: 10 * time.Second},
		now:           time.Now,
		log:           log,
	}
}

// TrackLead reports a Lead event for the person behind phoneNumber.
func (c *Client) TrackLead(ctx context.Context, tenant tenants.Tenant, phoneNumber string) (Result, error) {
	if tenant.MetaPixelID == "" || tenant.MetaAccessToken == "" {
		return Result{}, ErrNotConfigured
	}

	hashed := HashPhone(phoneNumber, c.region)
	if hashed == "" {
		return Result{}, fmt.Errorf("track lead: phone number %q has no digits", phoneNumber)
	}

	payload := eventsRequest{
		Data: []serverEvent{{
			EventName:    eventLead,
			EventTime:    c.now().Unix(),
			ActionSource: actionSourceChat,
			UserData:     userData{Phones: []string{hashed}},
		}},
		AccessToken:   tenant.MetaAccessToken,
		TestEventCode: c.testEventCode,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("track lead: %w", err)
	}

	result, err := c.post(ctx, tenant.MetaPixelID, payload)
	if err != nil {
		return Result{}, fmt.Errorf("track lead: %w", err)
	}

	if c.log != nil {
		c.log.Info("meta lead event sent", "tenant", tenant.Slug, "eventsReceived", result.EventsReceived, "fbtraceId", result.FBTraceID)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, pixelID string, payload eventsRequest) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal capi payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events", c.graphURL, c.version, pixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("capi request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, fmt.Errorf("capi returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("decode capi response: %w", err)
	}
	return result, nil
}

// HashPhone normalizes phoneNumber to E.164 digits and returns its lowercase
// hex SHA-256, the form the API expects for the ph field.
func HashPhone(phoneNumber, region string) string {
	digits := phone.Digits(phone.NormalizeE164(phoneNumber, region))
	if digits == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(digits))
	return hex.EncodeToString(sum[:])
}
