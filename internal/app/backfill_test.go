package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowEnds(t *testing.T) {
	from := time.Date(2026, 3, 1, 9, 20, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ends := windowEnds(from, to, time.Hour, time.UTC)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, ends)

	onBoundary := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}, windowEnds(onBoundary, onBoundary.Add(time.Hour), time.Hour, time.UTC), "起点窗口已结束时不应重复")

	assert.Empty(t, windowEnds(to, from, time.Hour, time.UTC))
}

func TestWindowEndsHalfHourZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	from := time.Date(2026, 3, 1, 9, 20, 0, 0, ist)
	ends := windowEnds(from, from.Add(time.Hour), time.Hour, ist)
	assert.Equal(t, []time.Time{time.Date(2026, 3, 1, 10, 0, 0, 0, ist).UTC()}, toUTC(ends))
}

func toUTC(in []time.Time) []time.Time {
	out := make([]time.Time, len(in))
	for i, t := range in {
		out[i] = t.UTC()
	}
	return out
}
