package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"clinic_webhook_backend/internal/coalescer"
	"clinic_webhook_backend/platform/logger"
)

// ForwardObserver records forward latency by status.
type ForwardObserver interface {
	ObserveForward(status string, elapsed time.Duration)
}

// Forwarder posts coalesced messages to tenant automation endpoints. One
// attempt per batch; failures are logged and the batch is dropped.
type Forwarder struct {
	client   *http.Client
	timeout  time.Duration
	observer ForwardObserver
	log      *logger.Logger
}

// NewForwarder creates a Forwarder whose attempts are bounded by timeout.
func NewForwarder(timeout time.Duration, observer ForwardObserver, log *logger.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Forwarder{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		observer: observer,
		log:      log,
	}
}

// Flush is the coalescer flush callback.
func (f *Forwarder) Flush(ctx context.Context, batch coalescer.Batch[ForwardContext]) {
	started := time.Now()
	err := f.forward(ctx, batch)

	status := "ok"
	if err != nil {
		status = "error"
	}
	if f.observer != nil {
		f.observer.ObserveForward(status, time.Since(started))
	}
	f.log.ForwardResult(batch.Latest.Tenant.Slug, batch.Key.ChatID, len(batch.Bodies), err)
}

func (f *Forwarder) forward(ctx context.Context, batch coalescer.Batch[ForwardContext]) error {
	target := batch.Latest.Tenant.WebhookURL
	if target == "" {
		return fmt.Errorf("tenant %s has no webhook url", batch.Latest.Tenant.Slug)
	}

	body, err := ReplaceBody(batch.Latest.Raw, batch.Text())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("automation endpoint returned %d", resp.StatusCode)
	}
	return nil
}
