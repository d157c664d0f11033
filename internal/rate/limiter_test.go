package rate

import (
	"testing"
	"time"
)

func TestMemoryLimiter(t *testing.T) {
	lim := NewMemory()

	for i := 0; i < 3; i++ {
		if ok, _ := lim.Allow("post", "10.0.0.1", 3); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, retry := lim.Allow("post", "10.0.0.1", 3)
	if ok {
		t.Fatal("fourth request should be limited")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry window: %v", retry)
	}

	// Actions and actors have separate budgets.
	if ok, _ := lim.Allow("vote", "10.0.0.1", 3); !ok {
		t.Fatal("different action should be allowed")
	}
	if ok, _ := lim.Allow("post", "10.0.0.2", 3); !ok {
		t.Fatal("different actor should be allowed")
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	lim := NewMemory()
	lim.window = 10 * time.Millisecond

	if ok, _ := lim.Allow("post", "10.0.0.1", 1); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := lim.Allow("post", "10.0.0.1", 1); ok {
		t.Fatal("second request should be limited")
	}
	time.Sleep(20 * time.Millisecond)
	if ok, _ := lim.Allow("post", "10.0.0.1", 1); !ok {
		t.Fatal("request after window reset should be allowed")
	}
}
