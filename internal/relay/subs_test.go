package relay

import "testing"

func TestSubscriptionSetAddRemove(t *testing.T) {
	s := NewSubscriptionSet()

	if !s.Add("sensors/#") {
		t.Error("Add(new) = false, want true")
	}
	if s.Add("sensors/#") {
		t.Error("Add(duplicate) = true, want false")
	}
	if !s.Contains("sensors/#") {
		t.Error("Contains = false after Add")
	}

	if !s.Remove("sensors/#") {
		t.Error("Remove(present) = false, want true")
	}
	if s.Remove("sensors/#") {
		t.Error("Remove(absent) = true, want false")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestSubscriptionSetListSorted(t *testing.T) {
	s := NewSubscriptionSet()
	s.Add("zebra")
	s.Add("alpha")
	s.Add("mid")

	got := s.List()
	want := []string{"alpha", "mid", "zebra"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
