package randutil

import "testing"

func TestRandomSuffix(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := RandomSuffix()
		if len(s) != 8 {
			t.Fatalf("RandomSuffix() = %q, want 8 characters", s)
		}
		if seen[s] {
			t.Fatalf("RandomSuffix() repeated %q", s)
		}
		seen[s] = true
	}
}
