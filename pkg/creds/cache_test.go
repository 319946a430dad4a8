package creds_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/creds"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func TestCacheSetAndGet(t *testing.T) {
	cache := creds.NewCacheAt(t.TempDir())

	cred := types.CachedCredential{
		Provider:  "test",
		Value:     "secret123",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	require.NoError(t, cache.Set("test-key", cred))
	retrieved, ok, err := cache.Get("test-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret123", retrieved.Value)
	assert.Equal(t, "test", retrieved.Provider)
}

func TestCacheExpiredReturnsNotFound(t *testing.T) {
	cache := creds.NewCacheAt(t.TempDir())

	cred := types.CachedCredential{
		Provider:  "test",
		Value:     "secret123",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	require.NoError(t, cache.Set("test-key", cred))
	_, ok, err := cache.Get("test-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheMissingReturnsNotFound(t *testing.T) {
	cache := creds.NewCacheAt(t.TempDir())
	_, ok, err := cache.Get("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheClearRemovesAllEntries(t *testing.T) {
	dir := t.TempDir()
	cache := creds.NewCacheAt(dir)

	cred := types.CachedCredential{Provider: "test", Value: "v", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, cache.Set("a", cred))
	require.NoError(t, cache.Set("b", cred))

	require.NoError(t, cache.Clear())

	_, ok, _ := cache.Get("a")
	assert.False(t, ok)
	_, ok, _ = cache.Get("b")
	assert.False(t, ok)
}
