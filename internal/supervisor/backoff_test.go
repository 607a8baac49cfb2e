package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestartPolicy_Delay(t *testing.T) {
	p := RestartPolicy{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 7, want: time.Minute},
		{attempt: 50, want: time.Minute},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, p.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestRestartPolicy_DelayWithoutCap(t *testing.T) {
	p := RestartPolicy{InitialDelay: 10 * time.Millisecond, Multiplier: 3.0}
	assert.Equal(t, 90*time.Millisecond, p.Delay(3))
}

func TestDefaultRestartPolicy(t *testing.T) {
	p := DefaultRestartPolicy()
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, time.Minute, p.ResetAfter)
}
