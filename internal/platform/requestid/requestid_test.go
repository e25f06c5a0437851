package requestid

import (
	"encoding/hex"
	"testing"
)

func TestNew(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 8; i++ {
		id, err := New()
		if err != nil {
			t.Fatalf("New() err=%v", err)
		}
		if len(id) != 32 {
			t.Fatalf("New() len=%d, want 32", len(id))
		}
		if _, err := hex.DecodeString(id); err != nil {
			t.Fatalf("New()=%q not hex: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("New() repeated id %q", id)
		}
		seen[id] = true
	}
}
