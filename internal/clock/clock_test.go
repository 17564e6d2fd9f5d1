package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []string{
		"2024-03-01T12:30:00Z",
		"2024-03-01T12:30:00z",
		"2024-03-01T12:30:00+00:00",
		"2024-03-01T14:30:00+0200",
		"2024-03-01T12:30:00",
		"2024-03-01 12:30:00",
		" 2024-03-01T12:30:00.000Z ",
	}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			got, err := Parse(value)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, value := range []string{"", "yesterday", "2024-13-45"} {
		_, err := Parse(value)
		assert.Error(t, err, value)
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	got, err := Parse(Format(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, "2024-03-01T11:30:00Z", Format(ts))
}
