package worker

import (
	"testing"
	"time"
)

func TestExponentialBackoffGrowth(t *testing.T) {
	// jitter adds at most 250ms, so compare against the deterministic floor
	cases := []struct {
		attempt int
		floor   time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
	}

	for _, c := range cases {
		got := ExponentialBackoff(c.attempt)

		if got < c.floor {
			t.Errorf("attempt %d: got %v, want at least %v", c.attempt, got, c.floor)
		}
		if got > c.floor+250*time.Millisecond {
			t.Errorf("attempt %d: got %v, jitter exceeds 250ms over %v", c.attempt, got, c.floor)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	capDelay := 5 * time.Minute

	for _, attempt := range []int{8, 10, 25} {
		got := ExponentialBackoff(attempt)

		if got < capDelay {
			t.Errorf("attempt %d: got %v, want at least the %v cap", attempt, got, capDelay)
		}
		if got > capDelay+250*time.Millisecond {
			t.Errorf("attempt %d: got %v, exceeds cap plus jitter", attempt, got)
		}
	}
}
