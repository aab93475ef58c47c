package backoff_test

import (
	"testing"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/backoff"
)

func TestQuadratic_GrowsWithSquare(t *testing.T) {
	q := backoff.NewQuadratic(30 * time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 4 * time.Second},
		{3, 9 * time.Second},
		{4, 16 * time.Second},
		{5, 25 * time.Second},
	}
	for _, tt := range tests {
		if got := q.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestQuadratic_CapTriggersAtAttemptSix(t *testing.T) {
	q := backoff.NewQuadratic(30 * time.Second)

	// 36s > 30s, so the cap kicks in from attempt 6 onward.
	for attempt := 6; attempt <= 10; attempt++ {
		if got := q.Delay(attempt); got != 30*time.Second {
			t.Errorf("Delay(%d) = %v, want capped %v", attempt, got, 30*time.Second)
		}
	}
}

func TestQuadratic_ZeroCapMeansUnbounded(t *testing.T) {
	q := backoff.NewQuadratic(0)
	if got := q.Delay(10); got != 100*time.Second {
		t.Errorf("Delay(10) = %v, want %v", got, 100*time.Second)
	}
}

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponentialWithJitter_StaysWithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 8; attempt++ {
		for range 50 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want within [0, 10s]", attempt, got)
			}
		}
	}
}

func TestDefaultStrategy_MatchesRetryPolicy(t *testing.T) {
	s := backoff.DefaultStrategy()

	if got := s.Delay(3); got != 9*time.Second {
		t.Errorf("Delay(3) = %v, want %v", got, 9*time.Second)
	}
	if got := s.Delay(7); got != 30*time.Second {
		t.Errorf("Delay(7) = %v, want capped %v", got, 30*time.Second)
	}
}
