package leads

import (
	"context"
	"sync"
	"time"

	"clinic_webhook_backend/platform/logger"
)

const claimTimeout = 10 * time.Second

// Service decides whether an inbound reply should fire a lead event and
// dispatches it.
type Service struct {
	claims     ClaimStore
	dispatcher Dispatcher
	observer   ResultObserver
	log        *logger.Logger

	inflight sync.WaitGroup
}

// NewService creates a Service.
func NewService(claims ClaimStore, dispatcher Dispatcher, observer ResultObserver, log *logger.Logger) *Service {
	return &Service{claims: claims, dispatcher: dispatcher, observer: observer, log: log}
}

// MaybeTrack reports whether the message is a reply on a conversation without
// the lead tag. When it is, claiming and dispatching run on a detached
// goroutine so the claim store and queue never delay the webhook response.
// Errors are logged there and never returned.
func (s *Service) MaybeTrack(ctx context.Context, job Job, isFirstMessage bool, metadata []MetadataEntry) bool {
	if isFirstMessage || !ShouldTrackLead(metadata) {
		return false
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimTimeout)
		defer cancel()
		s.claimAndDispatch(runCtx, job)
	}()
	return true
}

func (s *Service) claimAndDispatch(ctx context.Context, job Job) {
	won, err := s.claims.Claim(ctx, job.ClaimKey())
	if err != nil {
		s.log.Warn("lead claim failed", "key", job.ClaimKey(), "error", err)
		return
	}
	if !won {
		s.observe(ResultDuplicate)
		return
	}

	if err := s.dispatcher.DispatchLead(ctx, job); err != nil {
		s.log.Error("lead dispatch failed", "key", job.ClaimKey(), "error", err)
		_ = s.claims.Release(context.WithoutCancel(ctx), job.ClaimKey())
		return
	}
	s.observe(ResultDispatched)
}

// Wait blocks until every pending claim and dispatch has finished or ctx is
// done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.LeadTracking(result)
	}
}
