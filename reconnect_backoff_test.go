package screengate

import (
	"testing"
	"time"
)

func TestNextReconnectBackoffDoublesUntilCapped(t *testing.T) {
	cur := 100 * time.Millisecond
	cur = nextReconnectBackoff(cur, 10*time.Second)
	if cur != 200*time.Millisecond {
		t.Fatalf("expected 200ms, got %s", cur)
	}
	cur = nextReconnectBackoff(cur, 10*time.Second)
	if cur != 400*time.Millisecond {
		t.Fatalf("expected 400ms, got %s", cur)
	}
}

func TestNextReconnectBackoffCapped(t *testing.T) {
	cur := 800 * time.Millisecond
	cur = nextReconnectBackoff(cur, time.Second)
	if cur != time.Second {
		t.Fatalf("expected 1s cap, got %s", cur)
	}
	cur = nextReconnectBackoff(cur, time.Second)
	if cur != time.Second {
		t.Fatalf("expected to stay capped at 1s, got %s", cur)
	}
}
