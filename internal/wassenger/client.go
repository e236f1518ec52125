// Package wassenger is a thin client for the WhatsApp provider's REST API.
package wassenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/config"
	"clinic_webhook_backend/platform/logger"
)

// ErrMissingCredentials is returned when a tenant has no provider API key.
var ErrMissingCredentials = errors.New("wassenger api key not configured")

// MetadataEntry is one contact metadata key/value pair.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

type metadataRequest struct {
	Metadata []MetadataEntry `json:"metadata"`
}

func NewClient(cfg config.WassengerConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetWassengerAPIURL(), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// SetContactMetadata writes metadata onto the contact behind chatID.
func (c *Client) SetContactMetadata(ctx context.Context, tenant tenants.Tenant, chatID string, values map[string]string) error {
	entries := make([]MetadataEntry, 0, len(values))
	for key, value := range values {
		entries = append(entries, MetadataEntry{Key: key, Value: value})
	}

	endpoint := fmt.Sprintf("%s/v1/chat/%s/contacts/%s",
		c.baseURL, url.PathEscape(tenant.DeviceID), url.PathEscape(chatID))
	if err := c.patch(ctx, tenant, endpoint, metadataRequest{Metadata: entries}); err != nil {
		return fmt.Errorf("set contact metadata: %w", err)
	}

	if c.log != nil {
		c.log.Info("wassenger contact metadata updated", "tenant", tenant.Slug, "chatId", chatID, "keys", len(entries))
	}
	return nil
}

// AddChatLabels attaches labels to the chat, creating missing ones.
func (c *Client) AddChatLabels(ctx context.Context, tenant tenants.Tenant, chatID string, labels []string) error {
	endpoint := fmt.Sprintf("%s/v1/chat/%s/chats/%s/labels?upsert=true",
		c.baseURL, url.PathEscape(tenant.DeviceID), url.PathEscape(chatID))
	if err := c.patch(ctx, tenant, endpoint, labels); err != nil {
		return fmt.Errorf("add chat labels: %w", err)
	}
	return nil
}

func (c *Client) patch(ctx context.Context, tenant tenants.Tenant, endpoint string, payload interface{}) error {
	if tenant.WassengerAPIKey == "" {
		return ErrMissingCredentials
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal wassenger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", tenant.WassengerAPIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wassenger request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("wassenger returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
