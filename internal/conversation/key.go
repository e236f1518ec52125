// Package conversation defines the tenant-scoped conversation identity shared
// by every per-conversation store.
package conversation

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// Key identifies one chat within one tenant. ChatID is the provider chat JID,
// never the display phone number.
type Key struct {
	TenantID uuid.UUID
	ChatID   string
}

// NewKey builds a Key.
func NewKey(tenantID uuid.UUID, chatID string) Key {
	return Key{TenantID: tenantID, ChatID: chatID}
}

// String renders the key as "<tenant>/<chat>".
func (k Key) String() string {
	return k.TenantID.String() + "/" + k.ChatID
}

// IsZero reports whether the key lacks a chat id.
func (k Key) IsZero() bool {
	return k.ChatID == ""
}

// Shard maps the key onto one of n buckets.
func (k Key) Shard(n int) int {
	h := fnv.New32a()
	_, _ = h.Write(k.TenantID[:])
	_, _ = h.Write([]byte(k.ChatID))
	return int(h.Sum32() % uint32(n))
}
