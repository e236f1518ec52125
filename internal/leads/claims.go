package leads

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimStore guards the gap between dispatching a lead event and the
// provider-side tag becoming visible in later payloads.
type ClaimStore interface {
	// Claim returns true when the caller won the claim for key.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so a later message may retry.
	Release(ctx context.Context, key string) error
}

const claimPrefix = "lead-claim:"

// RedisClaimStore keeps claims in Redis with SET NX and a TTL.
type RedisClaimStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClaimStore creates a claim store on client.
func NewRedisClaimStore(client *redis.Client, ttl time.Duration) *RedisClaimStore {
	return &RedisClaimStore{client: client, ttl: ttl}
}

func (s *RedisClaimStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, claimPrefix+key, "1", s.ttl).Result()
}

func (s *RedisClaimStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, claimPrefix+key).Err()
}

// MemoryClaimStore keeps claims in process memory. Expired claims are swept
// at most once per ttl from within Claim.
type MemoryClaimStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	claims    map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryClaimStore creates an in-process claim store.
func NewMemoryClaimStore(ttl time.Duration) *MemoryClaimStore {
	return &MemoryClaimStore{ttl: ttl, claims: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryClaimStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		for k, expires := range s.claims {
			if !now.Before(expires) {
				delete(s.claims, k)
			}
		}
		s.lastSweep = now
	}

	if expires, ok := s.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.claims[key] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryClaimStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.claims, key)
	s.mu.Unlock()
	return nil
}

var (
	_ ClaimStore = (*RedisClaimStore)(nil)
	_ ClaimStore = (*MemoryClaimStore)(nil)
)
