package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		name string
		ms   int64
		want string
	}{
		{"zero", 0, "00:00:00"},
		{"sub-second truncates", 999, "00:00:00"},
		{"one second", 1000, "00:00:01"},
		{"one of each", 3661000, "01:01:01"},
		{"minute rollover", 59999, "00:00:59"},
		{"full day", 86400000, "24:00:00"},
		{"beyond two digit hours", 360000000, "100:00:00"},
		{"negative clamps", -5000, "00:00:00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatDuration(tc.ms))
		})
	}
}
