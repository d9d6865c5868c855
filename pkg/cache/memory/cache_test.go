package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, capacity int, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(capacity, ttl, WithClock(clock.Now)), clock
}

func TestDeriveKey(t *testing.T) {
	k1 := DeriveKey("Explain photosynthesis", "sonar-pro", "en")
	k2 := DeriveKey("Explain photosynthesis", "sonar-pro", "en")
	assert.Equal(t, k1, k2, "same triple should produce the same key")
	assert.Equal(t, "sonar-pro:en:RXhwbGFpbiBwaG90b3N5bnRoZXNpcw==", k1)

	assert.NotEqual(t, k1, DeriveKey("Explain photosynthesis", "sonar-pro", "hi"))
	assert.NotEqual(t, k1, DeriveKey("Explain photosynthesis", "sonar", "en"))
	assert.NotEqual(t, k1, DeriveKey("Explain respiration", "sonar-pro", "en"))

	// Delimiters inside the message stay inside the encoded segment.
	assert.NotEqual(t, DeriveKey("en:x", "m", ""), DeriveKey("x", "m", "en"))
}

func TestDefaults(t *testing.T) {
	c := New(0, 0)
	stats := c.Stats()
	assert.Equal(t, DefaultCapacity, stats.Capacity)
	assert.Equal(t, DefaultTTL, stats.TTL)
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)

	c.Set("Explain photosynthesis", "sonar-pro", "en", "Photosynthesis is...")

	got, ok := c.Get("Explain photosynthesis", "sonar-pro", "en")
	require.True(t, ok, "expected cache hit")
	assert.Equal(t, "Photosynthesis is...", got)

	_, ok = c.Get("Explain photosynthesis", "sonar-pro", "hi")
	assert.False(t, ok, "different language should miss")
}

func TestGetEmpty(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	v, ok := c.Get("anything", "m", "en")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.EqualValues(t, 1, c.Stats().Misses)
}

func TestTTLExpiration(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Minute)

	c.Set("q", "m", "en", "answer")
	c.Set("other", "m", "en", "answer 2")

	clock.Advance(time.Minute)
	_, ok := c.Get("q", "m", "en")
	assert.True(t, ok, "entry exactly at the TTL is still fresh")

	clock.Advance(time.Millisecond)
	require.Equal(t, 2, c.Len())
	_, ok = c.Get("q", "m", "en")
	assert.False(t, ok, "expected miss after TTL")
	assert.Equal(t, 1, c.Len(), "expired read should remove the entry")
	assert.EqualValues(t, 1, c.Stats().Expired)
}

func TestLenIsNotTTLAware(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Second)
	c.Set("a", "m", "en", 1)
	c.Set("b", "m", "en", 2)
	clock.Advance(time.Hour)
	assert.Equal(t, 2, c.Len())
}

func TestFIFOEviction(t *testing.T) {
	const capacity = 5
	c, _ := newTestCache(t, capacity, time.Hour)

	for i := range capacity {
		c.Set(fmt.Sprintf("q%d", i), "m", "en", i)
	}
	// Reading the oldest entry must not protect it from eviction.
	_, ok := c.Get("q0", "m", "en")
	require.True(t, ok)

	c.Set("q5", "m", "en", 5)

	assert.Equal(t, capacity, c.Len())
	_, ok = c.Get("q0", "m", "en")
	assert.False(t, ok, "first inserted entry should be evicted")
	for i := 1; i <= capacity; i++ {
		v, ok := c.Get(fmt.Sprintf("q%d", i), "m", "en")
		assert.True(t, ok, "q%d should remain", i)
		assert.Equal(t, i, v)
	}
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestEvictionIgnoresRemainingTTL(t *testing.T) {
	c, clock := newTestCache(t, 2, time.Minute)

	c.Set("old", "m", "en", "fresh enough")
	clock.Advance(30 * time.Second)
	c.Set("mid", "m", "en", "x")
	c.Set("new", "m", "en", "y")

	_, ok := c.Get("old", "m", "en")
	assert.False(t, ok)
	_, ok = c.Get("mid", "m", "en")
	assert.True(t, ok)
}

func TestOverwriteReplacesValueAndTimestamp(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Minute)

	c.Set("q", "m", "en", "v1")
	clock.Advance(50 * time.Second)
	c.Set("q", "m", "en", "v2")
	clock.Advance(50 * time.Second)

	v, ok := c.Get("q", "m", "en")
	require.True(t, ok, "overwrite should reset insertedAt")
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Len())
}

func TestOverwriteAtCapacityEvictsOldest(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Hour)

	c.Set("a", "m", "en", 1)
	c.Set("b", "m", "en", 2)
	c.Set("b", "m", "en", 3)

	assert.Equal(t, 1, c.Len(), "a full cache evicts before every insert")
	_, ok := c.Get("a", "m", "en")
	assert.False(t, ok, "a should be evicted")
	v, ok := c.Get("b", "m", "en")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestOverwriteKeepsEvictionOrder(t *testing.T) {
	c, _ := newTestCache(t, 3, time.Hour)

	c.Set("a", "m", "en", 1)
	c.Set("b", "m", "en", 2)
	c.Set("a", "m", "en", 10)
	c.Set("c", "m", "en", 3)
	c.Set("d", "m", "en", 4)

	_, ok := c.Get("a", "m", "en")
	assert.False(t, ok, "a keeps its original slot and is evicted first")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := c.Get(k, "m", "en")
		assert.True(t, ok, "%s should remain", k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	c.Set("a", "m", "en", 1)
	c.Set("b", "m", "en", 2)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a", "m", "en")
	assert.False(t, ok)
	_, ok = c.Get("b", "m", "en")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	c.Set("a", "m", "en", 1)
	c.Get("a", "m", "en") // hit
	c.Get("b", "m", "en") // miss

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 10, stats.Capacity)
}

func TestConcurrentAccessKeepsCapacity(t *testing.T) {
	const capacity = 64
	c := New(capacity, time.Minute)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				msg := fmt.Sprintf("w%d-q%d", w, i)
				c.Set(msg, "m", "en", i)
				c.Get(msg, "m", "en")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, c.Len())
}
