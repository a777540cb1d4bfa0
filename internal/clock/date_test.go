package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateIn(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	at := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), DateIn(at, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), DateIn(at, nil))
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	start := StartOfDay(date, loc)
	assert.Equal(t, time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC), start.UTC())
}

func TestFakeClock(t *testing.T) {
	c := NewFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	c.Advance(90 * time.Second)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 1, 30, 0, time.UTC), c.Now())
}
