package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"

	"clinic_webhook_backend/internal/leads"
	"clinic_webhook_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	err       error
	tracked   []leads.Job
	abandoned []leads.Job
}

func (f *fakeTracker) Track(_ context.Context, job leads.Job) error {
	f.tracked = append(f.tracked, job)
	return f.err
}

func (f *fakeTracker) Abandon(_ context.Context, job leads.Job, _ error) {
	f.abandoned = append(f.abandoned, job)
}

type testConfig struct{ url string }

func (c testConfig) GetRedisURL() string       { return c.url }
func (c testConfig) GetRedisTLSInsecure() bool { return false }
func (c testConfig) GetAsynqQueueName() string { return "" }
func (c testConfig) GetAsynqConcurrency() int  { return 1 }

func TestLeadTaskCarriesJobAndRetryLimit(t *testing.T) {
	job := leads.Job{TenantID: uuid.New(), ChatID: "123@c.us", Phone: "+123"}
	task, err := NewLeadTrackTask(job)
	require.NoError(t, err)
	require.Equal(t, TaskLeadTrack, task.Type())

	parsed, err := ParseLeadTrackPayload(task)
	require.NoError(t, err)
	require.Equal(t, job, parsed)
}

func TestHandleLeadTrack(t *testing.T) {
	tracker := &fakeTracker{}
	w := newWorker(tracker, logger.NewWithWriter("test", io.Discard))
	job := leads.Job{TenantID: uuid.New(), ChatID: "1@c.us", Phone: "+1"}
	task, err := NewLeadTrackTask(job)
	require.NoError(t, err)

	require.NoError(t, w.handleLeadTrack(context.Background(), task))
	require.Equal(t, []leads.Job{job}, tracker.tracked)
	require.Empty(t, tracker.abandoned)

	tracker.err = errors.New("capi down")
	require.Error(t, w.handleLeadTrack(context.Background(), task))
	require.Equal(t, []leads.Job{job}, tracker.abandoned, "failure outside a retrying worker is final")
}

func TestHandleLeadTrackBadPayloadSkipsRetry(t *testing.T) {
	w := newWorker(&fakeTracker{}, logger.NewWithWriter("test", io.Discard))
	err := w.handleLeadTrack(context.Background(), asynq.NewTask(TaskLeadTrack, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestClientEnqueuesLeadTask(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(testConfig{url: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.DispatchLead(context.Background(), leads.Job{TenantID: uuid.New(), ChatID: "1@c.us"}))

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestNewClientRequiresRedis(t *testing.T) {
	_, err := NewClient(testConfig{})
	require.Error(t, err)
}
