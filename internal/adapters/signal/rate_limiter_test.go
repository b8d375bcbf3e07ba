package signal

import (
	"testing"
	"time"
)

func TestRoomRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("alice") || !rl.Allow("alice") {
		t.Fatal("first two joins should pass")
	}
	if rl.Allow("alice") {
		t.Fatal("third join inside the window should be refused")
	}
	if !rl.Allow("bob") {
		t.Fatal("limits are per participant")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("alice") {
		t.Fatal("window should have slid")
	}
}

func TestRoomRateLimiterSweep(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("alice")
	now = now.Add(30 * time.Second)
	rl.Allow("bob")

	now = now.Add(45 * time.Second)
	if n := rl.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := rl.history["bob"]; !ok {
		t.Fatal("bob is still inside the window")
	}
}
