package mesh

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

func newTestTable() (*Table, map[domain.ParticipantID]*nopConn) {
	conns := make(map[domain.ParticipantID]*nopConn)
	return NewTable(func(remote domain.ParticipantID) (core.MediaConnection, error) {
		c := &nopConn{}
		conns[remote] = c
		return c, nil
	}), conns
}

func TestTableGetOrCreate(t *testing.T) {
	tbl, _ := newTestTable()
	l1, created, err := tbl.GetOrCreate("b")
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	if l1.State() != Idle {
		t.Fatalf("new link in %s", l1.State())
	}
	l2, created, err := tbl.GetOrCreate("b")
	if err != nil || created || l2 != l1 {
		t.Fatalf("second create returned a different link")
	}
	if tbl.Len() != 1 {
		t.Fatalf("len = %d", tbl.Len())
	}
}

func TestTableRemoveRetires(t *testing.T) {
	tbl, conns := newTestTable()
	_, _, _ = tbl.GetOrCreate("b")
	if !tbl.Remove("b") {
		t.Fatal("remove reported missing link")
	}
	if conns["b"].closed != 1 {
		t.Fatal("connection not closed")
	}
	if _, _, err := tbl.GetOrCreate("b"); !errors.Is(err, ErrRetired) {
		t.Fatalf("expected ErrRetired, got %v", err)
	}
	tbl.Forget("b")
	if _, created, err := tbl.GetOrCreate("b"); err != nil || !created {
		t.Fatalf("recreate after forget: created=%v err=%v", created, err)
	}
	if tbl.Remove("never") {
		t.Fatal("remove of unknown id reported a link")
	}
	if !tbl.Retired("never") {
		t.Fatal("unknown id not retired")
	}
}

func TestTableConnectorError(t *testing.T) {
	boom := errors.New("boom")
	tbl := NewTable(func(domain.ParticipantID) (core.MediaConnection, error) { return nil, boom })
	if _, _, err := tbl.GetOrCreate("b"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatal("failed create left a link")
	}
}

func TestTableForEachOrder(t *testing.T) {
	tbl, _ := newTestTable()
	for _, id := range []domain.ParticipantID{"d", "a", "c", "b"} {
		_, _, _ = tbl.GetOrCreate(id)
	}
	var seen []domain.ParticipantID
	tbl.ForEach(func(l *Link) {
		seen = append(seen, l.Remote)
		tbl.Remove(l.Remote)
	})
	if !reflect.DeepEqual(seen, []domain.ParticipantID{"a", "b", "c", "d"}) {
		t.Fatalf("order = %v", seen)
	}
	if tbl.Len() != 0 {
		t.Fatalf("len = %d after removing in ForEach", tbl.Len())
	}
}

func TestTableClear(t *testing.T) {
	tbl, conns := newTestTable()
	_, _, _ = tbl.GetOrCreate("a")
	_, _, _ = tbl.GetOrCreate("b")
	tbl.Remove("b")
	tbl.Clear()
	tbl.Clear()
	if tbl.Len() != 0 {
		t.Fatalf("len = %d", tbl.Len())
	}
	if conns["a"].closed != 1 || conns["b"].closed != 1 {
		t.Fatal("connections not closed exactly once")
	}
	if tbl.Retired("b") {
		t.Fatal("retirement survived Clear")
	}
}

// One link per joined participant and none after leave, for random join/leave sequences.
func TestTableMembershipProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []domain.ParticipantID{"p1", "p2", "p3", "p4", "p5"}
	for round := 0; round < 50; round++ {
		tbl, _ := newTestTable()
		joined := make(map[domain.ParticipantID]bool)
		for step := 0; step < 40; step++ {
			id := ids[rng.Intn(len(ids))]
			if rng.Intn(2) == 0 {
				tbl.Forget(id)
				if _, _, err := tbl.GetOrCreate(id); err != nil {
					t.Fatalf("join %s: %v", id, err)
				}
				joined[id] = true
			} else {
				tbl.Remove(id)
				delete(joined, id)
			}
			if tbl.Len() != len(joined) {
				t.Fatalf("round %d step %d: len %d, joined %d", round, step, tbl.Len(), len(joined))
			}
			for _, id := range ids {
				_, ok := tbl.Get(id)
				if ok != joined[id] {
					t.Fatalf("round %d step %d: link for %s = %v, joined = %v", round, step, id, ok, joined[id])
				}
			}
		}
	}
}
