package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

func connect(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := Connect(context.Background(), Config{Addr: mr.Addr(), TTL: ttl})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestJoinedAddsMemberWithTTL(t *testing.T) {
	r, mr := connect(t, time.Hour)
	ctx := context.Background()

	if err := r.Joined(ctx, "r1", "alice"); err != nil {
		t.Fatalf("Joined: %v", err)
	}
	if err := r.Joined(ctx, "r1", "bob"); err != nil {
		t.Fatalf("Joined: %v", err)
	}
	members, err := mr.Members("room:r1:peers")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 || members[0] != "alice" || members[1] != "bob" {
		t.Fatalf("members = %v", members)
	}
	if got := mr.TTL("room:r1:peers"); got != time.Hour {
		t.Fatalf("ttl = %v, want 1h", got)
	}
	if mr.Exists("room:r2:peers") {
		t.Fatal("other room touched")
	}
}

func TestLeftRemovesMember(t *testing.T) {
	r, mr := connect(t, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if err := r.Joined(ctx, "r1", domain.ParticipantID(id)); err != nil {
			t.Fatalf("Joined(%s): %v", id, err)
		}
	}
	if err := r.Left(ctx, "r1", "alice"); err != nil {
		t.Fatalf("Left: %v", err)
	}
	if ok, _ := mr.IsMember("room:r1:peers", "alice"); ok {
		t.Fatal("alice still present")
	}
	if ok, _ := mr.IsMember("room:r1:peers", "bob"); !ok {
		t.Fatal("bob removed")
	}
	if err := r.Left(ctx, "r1", "carol"); err != nil {
		t.Fatalf("Left of an absent member: %v", err)
	}
}

func TestRoomExpiresWithoutJoins(t *testing.T) {
	r, mr := connect(t, time.Minute)
	ctx := context.Background()

	if err := r.Joined(ctx, "r1", "alice"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(30 * time.Second)
	if err := r.Joined(ctx, "r1", "bob"); err != nil {
		t.Fatal(err)
	}
	if got := mr.TTL("room:r1:peers"); got != time.Minute {
		t.Fatalf("join did not refresh ttl: %v", got)
	}
	mr.FastForward(time.Minute)
	if mr.Exists("room:r1:peers") {
		t.Fatal("room set outlived its ttl")
	}
}

func TestConnectDefaultsTTLAndFailsWhenDown(t *testing.T) {
	r, mr := connect(t, 0)
	if err := r.Joined(context.Background(), "r1", "alice"); err != nil {
		t.Fatal(err)
	}
	if got := mr.TTL("room:r1:peers"); got != 24*time.Hour {
		t.Fatalf("default ttl = %v", got)
	}

	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Connect(ctx, Config{Addr: addr}); err == nil {
		t.Fatal("Connect to a stopped server succeeded")
	}
}
