// Package handoff tracks which conversations a human operator has taken over.
package handoff

import (
	"sync"
	"time"

	"clinic_webhook_backend/internal/conversation"
)

// State is the automation state of one conversation.
type State int

const (
	// AIActive is the default: inbound messages flow to automation.
	AIActive State = iota
	// Suppressed means a human replied recently; automation stays silent.
	Suppressed
)

func (s State) String() string {
	if s == Suppressed {
		return "suppressed"
	}
	return "ai_active"
}

const shardCount = 32

type record struct {
	markedAt time.Time
	window   time.Duration
}

func (r record) expired(now time.Time) bool {
	return now.Sub(r.markedAt) >= r.window
}

type shard struct {
	mu      sync.Mutex
	records map[conversation.Key]record
}

// Tracker holds the last human intervention per conversation. Keys are spread
// over independently locked shards; expiry is evaluated on read and the stale
// record is deleted by the read that observes it.
type Tracker struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[conversation.Key]record)}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shardFor(key conversation.Key) *shard {
	return t.shards[key.Shard(shardCount)]
}

// MarkHumanReply moves key to Suppressed for window starting now. A later mark
// restarts the window.
func (t *Tracker) MarkHumanReply(key conversation.Key, window time.Duration) {
	if window <= 0 {
		return
	}
	s := t.shardFor(key)
	s.mu.Lock()
	s.records[key] = record{markedAt: t.now(), window: window}
	s.mu.Unlock()
}

// State returns the current state of key.
func (t *Tracker) State(key conversation.Key) State {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return AIActive
	}
	if rec.expired(t.now()) {
		delete(s.records, key)
		return AIActive
	}
	return Suppressed
}

// IsSuppressed reports whether automation is suppressed for key.
func (t *Tracker) IsSuppressed(key conversation.Key) bool {
	return t.State(key) == Suppressed
}

// Len returns the number of stored records, expired ones included.
func (t *Tracker) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.records)
		s.mu.Unlock()
	}
	return total
}
