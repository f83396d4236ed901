package backoff

import (
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()

	if p.Base != time.Second {
		t.Errorf("Base = %v, want %v", p.Base, time.Second)
	}
	if p.Max != 30*time.Second {
		t.Errorf("Max = %v, want %v", p.Max, 30*time.Second)
	}
}

func TestDelayDoubles(t *testing.T) {
	p := Default()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		attempt := i + 1
		if got := p.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestDelayCapped(t *testing.T) {
	p := Default()

	// 2^5 = 32s exceeds the 30s cap.
	if got := p.Delay(6); got != 30*time.Second {
		t.Errorf("Delay(6) = %v, want %v", got, 30*time.Second)
	}
	// Far past the cap the delay must stay flat, not overflow.
	if got := p.Delay(100); got != 30*time.Second {
		t.Errorf("Delay(100) = %v, want %v", got, 30*time.Second)
	}
}

func TestDelayMonotonic(t *testing.T) {
	p := Policy{Base: 500 * time.Millisecond, Max: time.Minute}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased below %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelayFirstAttempt(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 10 * time.Second}

	if got := p.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want %v", got, 2*time.Second)
	}
	// Attempts below 1 are treated as the first.
	if got := p.Delay(0); got != 2*time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, 2*time.Second)
	}
}
