// Package coalescer merges bursts of inbound messages per conversation into a
// single message that is released after a quiet period.
package coalescer

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clinic_webhook_backend/internal/conversation"
	"clinic_webhook_backend/platform/logger"
)

const shardCount = 32

// Flush reasons reported to the FlushFunc and to metrics.
const (
	ReasonQuiet    = "quiet"
	ReasonCap      = "cap"
	ReasonShutdown = "shutdown"
)

// Batch is one coalesced message ready to forward.
type Batch[T any] struct {
	Key    conversation.Key
	Bodies []string
	// Latest is the context passed with the most recent Push.
	Latest T
	Reason string
}

// Text joins the bodies with single spaces in arrival order.
func (b Batch[T]) Text() string {
	return strings.Join(b.Bodies, " ")
}

// FlushFunc receives each batch exactly once. Failures are the callee's
// concern: the buffer never re-queues a batch.
type FlushFunc[T any] func(ctx context.Context, batch Batch[T])

// FlushObserver is notified of every flush.
type FlushObserver interface {
	Flush(reason string)
}

// Options tunes a Buffer.
type Options struct {
	Window      time.Duration
	MaxMessages int
	MaxBytes    int
}

type pending[T any] struct {
	token  uint64
	bodies []string
	size   int
	latest T
	timer  *time.Timer
}

type shard[T any] struct {
	mu      sync.Mutex
	buffers map[conversation.Key]*pending[T]
}

// Buffer owns one pending buffer per conversation. Each Push re-arms a single
// timer for the key under a fresh token; a timer only flushes if its token is
// still the live one, so a superseded timer that fires late is a no-op.
type Buffer[T any] struct {
	shards   [shardCount]*shard[T]
	opts     Options
	flush    FlushFunc[T]
	observer FlushObserver
	log      *logger.Logger

	tokens   atomic.Uint64
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// New creates a Buffer that hands batches to flush.
func New[T any](opts Options, flush FlushFunc[T], observer FlushObserver, log *logger.Logger) *Buffer[T] {
	if opts.Window <= 0 {
		opts.Window = 15 * time.Second
	}
	b := &Buffer[T]{
		opts:     opts,
		flush:    flush,
		observer: observer,
		log:      log,
	}
	for i := range b.shards {
		b.shards[i] = &shard[T]{buffers: make(map[conversation.Key]*pending[T])}
	}
	return b
}

// Push appends body to key's buffer and slides its flush timer forward.
// It returns true when the push filled the buffer and triggered an immediate
// flush.
func (b *Buffer[T]) Push(key conversation.Key, body string, latest T) bool {
	s := b.shards[key.Shard(shardCount)]
	s.mu.Lock()

	// Drain sets closed before detaching any shard, so under the lock a push
	// either lands in a map Drain will take or sees closed.
	if b.closed.Load() {
		s.mu.Unlock()
		b.flushNow(Batch[T]{Key: key, Bodies: []string{body}, Latest: latest, Reason: ReasonShutdown})
		return true
	}

	p, ok := s.buffers[key]
	if !ok {
		p = &pending[T]{}
		s.buffers[key] = p
	}
	p.bodies = append(p.bodies, body)
	p.size += len(body)
	p.latest = latest
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	if b.full(p) {
		delete(s.buffers, key)
		b.inflight.Add(1)
		s.mu.Unlock()
		b.release(key, p, ReasonCap)
		return true
	}

	token := b.tokens.Add(1)
	p.token = token
	p.timer = time.AfterFunc(b.opts.Window, func() {
		b.fire(key, token)
	})
	count := len(p.bodies)
	s.mu.Unlock()

	if b.log != nil {
		b.log.Debug("coalescer: buffered message", "conversation", key.String(), "pending", count)
	}
	return false
}

func (b *Buffer[T]) full(p *pending[T]) bool {
	if b.opts.MaxMessages > 0 && len(p.bodies) >= b.opts.MaxMessages {
		return true
	}
	return b.opts.MaxBytes > 0 && p.size >= b.opts.MaxBytes
}

func (b *Buffer[T]) fire(key conversation.Key, token uint64) {
	s := b.shards[key.Shard(shardCount)]
	s.mu.Lock()
	p, ok := s.buffers[key]
	if !ok || p.token != token {
		s.mu.Unlock()
		return
	}
	delete(s.buffers, key)
	p.timer = nil
	b.inflight.Add(1)
	s.mu.Unlock()

	b.release(key, p, ReasonQuiet)
}

// release hands a detached buffer to the flush func off the caller's
// goroutine. The caller has already counted it in inflight.
func (b *Buffer[T]) release(key conversation.Key, p *pending[T], reason string) {
	batch := Batch[T]{Key: key, Bodies: p.bodies, Latest: p.latest, Reason: reason}
	go func() {
		defer b.inflight.Done()
		b.flushNow(batch)
	}()
}

func (b *Buffer[T]) flushNow(batch Batch[T]) {
	if b.observer != nil {
		b.observer.Flush(batch.Reason)
	}
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("coalescer: flush panicked", "conversation", batch.Key.String(), "panic", r)
		}
	}()
	b.flush(context.Background(), batch)
}

// Pending returns the number of conversations with buffered messages.
func (b *Buffer[T]) Pending() int {
	total := 0
	for _, s := range b.shards {
		s.mu.Lock()
		total += len(s.buffers)
		s.mu.Unlock()
	}
	return total
}

// Drain flushes every pending buffer immediately and waits for in-flight
// flushes until ctx is done. Pushes after Drain flush synchronously on the
// caller's goroutine.
func (b *Buffer[T]) Drain(ctx context.Context) error {
	b.closed.Store(true)

	for _, s := range b.shards {
		s.mu.Lock()
		detached := s.buffers
		s.buffers = make(map[conversation.Key]*pending[T])
		s.mu.Unlock()

		for key, p := range detached {
			if p.timer != nil {
				p.timer.Stop()
			}
			b.inflight.Add(1)
			b.release(key, p, ReasonShutdown)
		}
	}

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
