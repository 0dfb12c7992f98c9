package reprojcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeKey_DeterministicRegardlessOfOrder(t *testing.T) {
	k1 := MakeKey([]string{"b.fits", "a.fits"}, []string{"g.fits"}, []string{"blue.fits"}, 1024)
	k2 := MakeKey([]string{"a.fits", "b.fits"}, []string{"g.fits"}, []string{"blue.fits"}, 1024)
	assert.Equal(t, k1, k2)
}

func TestMakeKey_DiffersOnBudget(t *testing.T) {
	k1 := MakeKey([]string{"a.fits"}, []string{"g.fits"}, []string{"blue.fits"}, 1024)
	k2 := MakeKey([]string{"a.fits"}, []string{"g.fits"}, []string{"blue.fits"}, 2048)
	assert.NotEqual(t, k1, k2)
}

func TestMakeKeyNChannel_Deterministic(t *testing.T) {
	k1 := MakeKeyNChannel([][]string{{"b", "a"}, {"c"}}, 10)
	k2 := MakeKeyNChannel([][]string{{"a", "b"}, {"c"}}, 10)
	assert.Equal(t, k1, k2)
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := New(DefaultConfig())
	key := MakeKey([]string{"a.fits"}, []string{"b.fits"}, []string{"c.fits"}, 1024)

	channels := map[string][]byte{"red": []byte("rrrr"), "green": []byte("gggg")}
	c.Put(key, channels)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, channels, got)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := New(DefaultConfig())
	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(&Config{TTL: 10 * time.Millisecond, MaxEntries: 10, MaxBytes: 1024 * 1024})
	c.Put("k", map[string][]byte{"red": []byte("x")})

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_EvictsByEntryCount(t *testing.T) {
	c := New(&Config{TTL: time.Hour, MaxEntries: 2, MaxBytes: 1024 * 1024})
	c.Put("k1", map[string][]byte{"red": []byte("x")})
	c.Put("k2", map[string][]byte{"red": []byte("x")})
	c.Put("k3", map[string][]byte{"red": []byte("x")})

	_, ok := c.Get("k1")
	assert.False(t, ok, "k1 should have been evicted as least recently used")

	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestCache_SkipsEntryLargerThanBudget(t *testing.T) {
	c := New(&Config{TTL: time.Hour, MaxEntries: 10, MaxBytes: 4})
	c.Put("k1", map[string][]byte{"red": []byte("too big for budget")})

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCache_EvictsByByteBudget(t *testing.T) {
	c := New(&Config{TTL: time.Hour, MaxEntries: 10, MaxBytes: 10})
	c.Put("k1", map[string][]byte{"red": []byte("12345")})
	c.Put("k2", map[string][]byte{"red": []byte("67890")})
	// Adding a third entry should evict k1 to stay within the 10-byte budget.
	c.Put("k3", map[string][]byte{"red": []byte("abcde")})

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.LessOrEqual(t, c.Size(), int64(10))
}

func TestCache_StatsTrackHitsAndMisses(t *testing.T) {
	c := New(DefaultConfig())
	c.Put("k1", map[string][]byte{"red": []byte("x")})

	_, _ = c.Get("k1")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}
