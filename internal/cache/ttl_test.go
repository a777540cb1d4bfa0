package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	got, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, c.Len())

	c.Delete("b")
	assert.Equal(t, 0, c.Len())
}

func TestCacheKeyNormalizes(t *testing.T) {
	assert.Equal(t, "1|2026-03-02", cacheKey(" 1 ", "", "2026-03-02"))
	assert.Equal(t, "abc", cacheKey("ABC"))
}
