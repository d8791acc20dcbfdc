package relay

import (
	"testing"
	"time"
)

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	if d := b.NextDelay(0); d != DefaultBackoffBase {
		t.Fatalf("NextDelay(0) = %v, want %v", d, DefaultBackoffBase)
	}
	if d := b.NextDelay(3); d != 8*time.Second {
		t.Fatalf("NextDelay(3) = %v, want 8s", d)
	}
}

func TestBackoffSaturates(t *testing.T) {
	var b Backoff
	prev := time.Duration(0)
	for n := 0; n < 200; n++ {
		d := b.NextDelay(n)
		if d < prev {
			t.Fatalf("NextDelay not monotone at %d: %v < %v", n, d, prev)
		}
		if d > DefaultBackoffCap {
			t.Fatalf("NextDelay(%d) = %v exceeds cap", n, d)
		}
		prev = d
	}
	if d := b.NextDelay(1000); d != DefaultBackoffCap {
		t.Fatalf("NextDelay(1000) = %v, want cap %v", d, DefaultBackoffCap)
	}
}

func TestBackoffCustomCap(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Cap: 5 * time.Second}
	if d := b.NextDelay(0); d != 2*time.Second {
		t.Fatalf("NextDelay(0) = %v, want 2s", d)
	}
	if d := b.NextDelay(1); d != 4*time.Second {
		t.Fatalf("NextDelay(1) = %v, want 4s", d)
	}
	if d := b.NextDelay(2); d != 5*time.Second {
		t.Fatalf("NextDelay(2) = %v, want cap 5s", d)
	}
}
