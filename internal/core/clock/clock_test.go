package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarSameDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	cal := NewCalendar(loc)

	// 22:30 UTC is already the next day at UTC+3.
	a := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	b := time.Date(2024, 5, 10, 22, 30, 0, 0, time.UTC)
	assert.False(t, cal.SameDay(a, b))

	c := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	assert.True(t, cal.SameDay(a, c))

	assert.True(t, NewCalendar(nil).SameDay(a, b))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewFixed(start)
	c.Advance(2 * time.Hour)
	assert.Equal(t, start.Add(2*time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
