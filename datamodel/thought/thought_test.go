package thought

import "testing"

func TestEnterCollapse(t *testing.T) {
	s := NewStore()
	if _, ok := s.Collapse(); ok {
		t.Fatal("Collapse of an empty store succeeded")
	}

	in := []string{"a", "b", "c"}
	s.Enter(in)
	in[0] = "mutated"

	if s.CurrentThoughtCount() != 3 {
		t.Fatalf("Expected 3 thoughts, got %d", s.CurrentThoughtCount())
	}
	if s.Thoughts()[0] != "a" {
		t.Error("Enter kept a reference to the caller's slice")
	}

	got, ok := s.Collapse()
	if !ok {
		t.Fatal("Collapse failed")
	}
	if got != "a" && got != "b" && got != "c" {
		t.Errorf("Collapse returned an unknown thought %q", got)
	}
	if s.CurrentThoughtCount() != 0 {
		t.Errorf("Collapse should clear thoughts, %d left", s.CurrentThoughtCount())
	}
	if m := s.Memories(); len(m) != 1 || m[0] != got {
		t.Errorf("Collapsed thought not kept as memory: %v", m)
	}
}
