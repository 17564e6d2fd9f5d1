package clock

import (
	"fmt"
	"strings"
	"time"
)

// Clock supplies the current time. Implementations return UTC.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. Used by tests and replays.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f).UTC() }

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Parse reads an ISO-8601 timestamp. It accepts a trailing "Z" or "z",
// numeric offsets with or without a colon, and naive values which are
// taken as UTC. The result is always UTC.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if strings.HasSuffix(value, "z") {
		value = strings.TrimSuffix(value, "z") + "Z"
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", value)
}

// Format renders t in UTC with a trailing "Z".
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
