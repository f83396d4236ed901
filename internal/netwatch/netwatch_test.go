package netwatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingNudger struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNudger) Nudge(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNudger) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reasons)
}

func TestNudgesOnAddressChange(t *testing.T) {
	nudger := &recordingNudger{}
	w := New(nudger, 10*time.Millisecond, zerolog.Nop())

	var mu sync.Mutex
	addrs := []string{"192.168.1.10/24"}
	w.getAddrs = func() ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), addrs...), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Unchanged addresses never nudge.
	time.Sleep(50 * time.Millisecond)
	if n := nudger.count(); n != 0 {
		t.Fatalf("nudges before change = %d, want 0", n)
	}

	mu.Lock()
	addrs = []string{"10.0.0.7/24"}
	mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for nudger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if nudger.count() == 0 {
		t.Fatal("no nudge after address change")
	}
}

func TestSingleNudgePerChange(t *testing.T) {
	nudger := &recordingNudger{}
	w := New(nudger, 10*time.Millisecond, zerolog.Nop())

	var mu sync.Mutex
	addrs := []string{"192.168.1.10/24"}
	w.getAddrs = func() ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), addrs...), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	mu.Lock()
	addrs = []string{"10.0.0.7/24"}
	mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for nudger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The new set is now the baseline; repeat polls stay quiet.
	time.Sleep(60 * time.Millisecond)
	if n := nudger.count(); n != 1 {
		t.Errorf("nudges = %d, want 1", n)
	}
}

func TestStopsOnContextCancel(t *testing.T) {
	nudger := &recordingNudger{}
	w := New(nudger, 10*time.Millisecond, zerolog.Nop())

	var mu sync.Mutex
	addrs := []string{"192.168.1.10/24"}
	w.getAddrs = func() ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), addrs...), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	addrs = []string{"10.0.0.7/24"}
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	if n := nudger.count(); n != 0 {
		t.Errorf("nudges after cancel = %d, want 0", n)
	}
}

func TestEqualStrings(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{nil, nil, true},
		{[]string{"x"}, []string{"x"}, true},
		{[]string{"x"}, []string{"y"}, false},
		{[]string{"x"}, []string{"x", "y"}, false},
	}
	for _, c := range cases {
		if got := equalStrings(c.a, c.b); got != c.want {
			t.Errorf("equalStrings(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
