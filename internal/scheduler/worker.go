package scheduler

import (
	"context"
	"fmt"

	"clinic_webhook_backend/internal/leads"
	"clinic_webhook_backend/platform/config"
	"clinic_webhook_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// LeadTracker runs lead jobs.
type LeadTracker interface {
	Track(ctx context.Context, job leads.Job) error
	Abandon(ctx context.Context, job leads.Job, cause error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	tracker LeadTracker
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, tracker LeadTracker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(tracker, log)
	w.server = server
	return w, nil
}

func newWorker(tracker LeadTracker, log *logger.Logger) *Worker {
	w := &Worker{
		mux:     asynq.NewServeMux(),
		tracker: tracker,
		log:     log,
	}
	w.mux.HandleFunc(TaskLeadTrack, w.handleLeadTrack)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadTrack(ctx context.Context, task *asynq.Task) error {
	job, err := ParseLeadTrackPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if err := w.tracker.Track(ctx, job); err != nil {
		if finalAttempt(ctx) {
			w.tracker.Abandon(context.WithoutCancel(ctx), job, err)
		}
		return err
	}
	return nil
}

// finalAttempt reports whether a failure now exhausts the task's retries.
// Outside a worker context every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
