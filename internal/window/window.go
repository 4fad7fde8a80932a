// Package window derives the hourly reporting window and its idempotency key.
package window

import (
	"fmt"
	"time"
)

// KeyLayout formats window keys in the report timezone.
const KeyLayout = "2006-01-02 15:00"

// DefaultZone is used when no timezone is configured.
const DefaultZone = "Asia/Shanghai"

// Window is a closed-open reporting interval.
type Window struct {
	Start time.Time
	End   time.Time
	Key   string
}

// Hourly returns the full hour that ended at or before at, in loc.
// A run at 10:00:30 reports on 09:00-10:00 under key "... 10:00".
func Hourly(at time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	end := at.In(loc).Truncate(time.Hour)
	return Window{
		Start: end.Add(-time.Hour),
		End:   end,
		Key:   end.Format(KeyLayout),
	}
}

// Span returns a window of length d ending at the hour boundary at or before at.
func Span(at time.Time, d time.Duration, loc *time.Location) (Window, error) {
	if d <= 0 {
		return Window{}, fmt.Errorf("window length must be positive, got %s", d)
	}
	w := Hourly(at, loc)
	w.Start = w.End.Add(-d)
	return w, nil
}

// LoadZone resolves a configured zone name, defaulting to Asia/Shanghai.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
