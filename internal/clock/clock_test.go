package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		at   time.Time
		want Display
	}{
		{time.Date(2025, 6, 2, 0, 5, 9, 0, time.UTC), Display{"12:05:09 A.M", "Monday, June 2, 2025"}},
		{time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC), Display{"09:30:00 A.M", "Monday, June 2, 2025"}},
		{time.Date(2025, 12, 25, 12, 0, 0, 0, time.UTC), Display{"12:00:00 P.M", "Thursday, December 25, 2025"}},
		{time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), Display{"11:59:59 P.M", "Thursday, February 29, 2024"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.at), tt.at.String())
	}
}
