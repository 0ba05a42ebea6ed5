package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishBackoff(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		mult    float64
		attempt int
		want    time.Duration
	}{
		{
			name:    "first retry is the base delay",
			base:    100 * time.Millisecond,
			mult:    2,
			attempt: 0,
			want:    100 * time.Millisecond,
		},
		{
			name:    "doubling",
			base:    100 * time.Millisecond,
			mult:    2,
			attempt: 3,
			want:    800 * time.Millisecond,
		},
		{
			name:    "configured multiplier scales the delay",
			base:    100 * time.Millisecond,
			mult:    1.5,
			attempt: 2,
			want:    225 * time.Millisecond,
		},
		{
			name:    "gentler multiplier grows slower than doubling",
			base:    time.Second,
			mult:    1.5,
			attempt: 4,
			want:    5062500 * time.Microsecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publishBackoff(tt.base, tt.mult, tt.attempt))
		})
	}
}
