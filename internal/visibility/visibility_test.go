package visibility

import "testing"

// recordingSink captures visibility transitions.
type recordingSink struct {
	calls []bool
}

func (s *recordingSink) VisibilityChanged(visible bool) {
	s.calls = append(s.calls, visible)
}

func TestInitiallyVisible(t *testing.T) {
	tr := NewTracker(nil)

	if !tr.Visible() {
		t.Error("Visible = false with no clients, want true")
	}
}

func TestSingleClientTransitions(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)

	tr.Report("a", false)
	if tr.Visible() {
		t.Error("Visible = true with one hidden client, want false")
	}

	tr.Report("a", true)
	if !tr.Visible() {
		t.Error("Visible = false after client became visible, want true")
	}

	want := []bool{false, true}
	if len(sink.calls) != len(want) {
		t.Fatalf("sink calls = %v, want %v", sink.calls, want)
	}
	for i := range want {
		if sink.calls[i] != want[i] {
			t.Errorf("sink call %d = %v, want %v", i, sink.calls[i], want[i])
		}
	}
}

func TestAnyVisibleClientWins(t *testing.T) {
	tr := NewTracker(nil)

	tr.Report("a", false)
	tr.Report("b", true)

	if !tr.Visible() {
		t.Error("Visible = false with one visible client, want true")
	}

	tr.Report("b", false)
	if tr.Visible() {
		t.Error("Visible = true with all clients hidden, want false")
	}
}

func TestForgetLastClientRestoresVisible(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)

	tr.Report("a", false)
	tr.Forget("a")

	// No clients left counts as visible (headless operation).
	if !tr.Visible() {
		t.Error("Visible = false with no clients, want true")
	}

	want := []bool{false, true}
	if len(sink.calls) != len(want) {
		t.Fatalf("sink calls = %v, want %v", sink.calls, want)
	}
}

func TestNoNotificationWithoutTransition(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)

	tr.Report("a", true)
	tr.Report("b", true)
	tr.Report("a", true)

	if len(sink.calls) != 0 {
		t.Errorf("sink calls = %v, want none (state never changed)", sink.calls)
	}
}

func TestForgetUnknownClient(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)

	tr.Forget("ghost")

	if !tr.Visible() {
		t.Error("Visible = false, want true")
	}
	if len(sink.calls) != 0 {
		t.Errorf("sink calls = %v, want none", sink.calls)
	}
}
