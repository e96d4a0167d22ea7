package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Claim(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first, err := s.Claim(ctx, "object:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Claim(ctx, "object:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, s.Release(ctx, "object:a"))
	retried, err := s.Claim(ctx, "object:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, retried)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	ok, _ := s.Claim(ctx, "k", 10*time.Millisecond)
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	ok, _ = s.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(context.Background(), Config{RedisURL: "not a url"})
	assert.Error(t, err)
}

func TestConfig_TTL(t *testing.T) {
	assert.Equal(t, time.Hour, Config{}.TTL())
	assert.Equal(t, 5*time.Second, Config{TTLSeconds: 5}.TTL())
}
