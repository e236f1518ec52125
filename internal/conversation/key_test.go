package conversation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestKeyShardIsStable(t *testing.T) {
	key := NewKey(uuid.New(), "123@c.us")
	first := key.Shard(32)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, key.Shard(32))
	}
	require.GreaterOrEqual(t, first, 0)
	require.Less(t, first, 32)
}

func TestKeysDifferAcrossTenants(t *testing.T) {
	a := NewKey(uuid.New(), "123@c.us")
	b := NewKey(uuid.New(), "123@c.us")
	require.NotEqual(t, a, b)
	require.NotEqual(t, a.String(), b.String())
	require.True(t, Key{}.IsZero())
}
