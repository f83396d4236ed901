package outbox

import (
	"fmt"
	"testing"
	"time"
)

func TestEnqueueAndDrainInOrder(t *testing.T) {
	q := New(10, time.Minute)

	for i := 1; i <= 3; i++ {
		q.Enqueue([]byte(fmt.Sprintf("msg-%d", i)))
	}

	var got []string
	sent, dropped := q.Drain(func(p []byte) bool {
		got = append(got, string(p))
		return true
	})

	if sent != 3 || dropped != 0 {
		t.Fatalf("Drain = (%d, %d), want (3, 0)", sent, dropped)
	}
	want := []string{"msg-1", "msg-2", "msg-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", q.Len())
	}
}

func TestEnqueueEvictsOldestOnOverflow(t *testing.T) {
	q := New(3, time.Minute)

	for i := 1; i <= 3; i++ {
		if evicted := q.Enqueue([]byte(fmt.Sprintf("msg-%d", i))); evicted {
			t.Errorf("Enqueue(msg-%d) evicted before capacity was reached", i)
		}
	}

	// Messages 4 and 5 push out 1 and 2.
	for i := 4; i <= 5; i++ {
		if evicted := q.Enqueue([]byte(fmt.Sprintf("msg-%d", i))); !evicted {
			t.Errorf("Enqueue(msg-%d) = false, want eviction", i)
		}
	}

	var got []string
	q.Drain(func(p []byte) bool {
		got = append(got, string(p))
		return true
	})

	want := []string{"msg-3", "msg-4", "msg-5"}
	if len(got) != len(want) {
		t.Fatalf("delivered %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDrainDropsStaleEntries(t *testing.T) {
	q := New(10, 5*time.Minute)

	now := time.Now()
	q.SetClock(func() time.Time { return now })

	q.Enqueue([]byte("old"))

	// Six minutes pass; the first entry exceeds the TTL.
	now = now.Add(6 * time.Minute)
	q.Enqueue([]byte("fresh"))

	var got []string
	sent, dropped := q.Drain(func(p []byte) bool {
		got = append(got, string(p))
		return true
	})

	if sent != 1 || dropped != 1 {
		t.Fatalf("Drain = (%d, %d), want (1, 1)", sent, dropped)
	}
	if len(got) != 1 || got[0] != "fresh" {
		t.Errorf("delivered = %v, want [fresh]", got)
	}
}

func TestDrainStopsOnSendFailure(t *testing.T) {
	q := New(10, time.Minute)

	for i := 1; i <= 4; i++ {
		q.Enqueue([]byte(fmt.Sprintf("msg-%d", i)))
	}

	calls := 0
	sent, _ := q.Drain(func(p []byte) bool {
		calls++
		return calls <= 2
	})

	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	// msg-3 (the failed send) and msg-4 stay queued for the next drain.
	if q.Len() != 2 {
		t.Fatalf("Len after failed drain = %d, want 2", q.Len())
	}

	var got []string
	q.Drain(func(p []byte) bool {
		got = append(got, string(p))
		return true
	})
	want := []string{"msg-3", "msg-4"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("redelivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRequeueKeepsOrderAheadOfNewEntries(t *testing.T) {
	q := New(10, time.Minute)

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))

	// Fail immediately, then enqueue c while a and b are pending requeue.
	q.Drain(func(p []byte) bool {
		q.Enqueue([]byte("c"))
		return false
	})

	var got []string
	q.Drain(func(p []byte) bool {
		got = append(got, string(p))
		return true
	})

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("delivered %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClear(t *testing.T) {
	q := New(10, time.Minute)

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))

	if n := q.Clear(); n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len after clear = %d, want 0", q.Len())
	}
}

func TestDefaults(t *testing.T) {
	q := New(0, 0)

	if q.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", q.capacity, DefaultCapacity)
	}
	if q.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", q.ttl, DefaultTTL)
	}
}
