package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNormalizesQuery(t *testing.T) {
	assert.Equal(t, Key("Wikipedia", 3, "Quantum   Computing "), Key("Wikipedia", 3, "quantum computing"))
	assert.NotEqual(t, Key("Wikipedia", 3, "x"), Key("Wikipedia", 5, "x"))
	assert.NotEqual(t, Key("Wikipedia", 3, "x"), Key("ArXiv", 3, "x"))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Minute)
	t.Cleanup(func() { m.Close() })

	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))
	require.NoError(t, m.Set(ctx, "c", "3"))

	_, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry should be evicted")

	v, ok, err := m.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	assert.Equal(t, 2, m.Len())
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, 20*time.Millisecond)
	require.NoError(t, m.Set(ctx, "k", "v"))

	require.Eventually(t, func() bool {
		_, ok, _ := m.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
