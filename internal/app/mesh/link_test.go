package mesh

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/app/playout"
	"github.com/dkeye/VoiceMesh/internal/core"
)

func TestLinkTransitions(t *testing.T) {
	cases := []struct {
		name  string
		path  []State
		fails bool
	}{
		{"offerer", []State{Offering, AwaitingAnswer, Connected}, false},
		{"answerer", []State{Answering, Connected}, false},
		{"glare rollback", []State{Offering, AwaitingAnswer, Idle, Answering, Connected}, false},
		{"renegotiate", []State{Answering, Connected, Offering, AwaitingAnswer, Connected}, false},
		{"answer in idle", []State{Connected}, true},
		{"answering to offering", []State{Answering, Offering}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newLink("b", &nopConn{})
			var err error
			for _, s := range tc.path {
				if err = l.Transition(s); err != nil {
					break
				}
			}
			if tc.fails {
				if !errors.Is(err, core.ErrInvalidState) {
					t.Fatalf("expected ErrInvalidState, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := append([]State{Idle}, tc.path...)
			if got := l.History(); !reflect.DeepEqual(got, want) {
				t.Fatalf("history = %v, want %v", got, want)
			}
		})
	}
}

func TestLinkClosedIsTerminal(t *testing.T) {
	conn := &nopConn{}
	l := newLink("b", conn)
	_ = l.Transition(Offering)
	if err := l.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if conn.closed != 1 {
		t.Fatalf("conn closed %d times, want 1", conn.closed)
	}
	if err := l.Transition(Idle); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("transition after close: %v", err)
	}
	if !l.Closed() {
		t.Fatal("link not closed")
	}
}

func TestLinkPendingDrainedOnce(t *testing.T) {
	l := newLink("b", &nopConn{})
	for _, c := range []string{"c1", "c2", "c3"} {
		l.BufferCandidate(webrtc.ICECandidateInit{Candidate: c})
	}
	got := l.TakePending()
	if len(got) != 3 || got[0].Candidate != "c1" || got[2].Candidate != "c3" {
		t.Fatalf("unexpected drain order: %+v", got)
	}
	l.MarkRemoteDescription()
	l.BufferCandidate(webrtc.ICECandidateInit{Candidate: "late"})
	if again := l.TakePending(); again != nil {
		t.Fatalf("pending drained twice: %+v", again)
	}
}

func TestLinkOutboundCandidatesHeldUntilSignaled(t *testing.T) {
	l := newLink("b", &nopConn{})
	if l.QueueLocalCandidate(webrtc.ICECandidateInit{Candidate: "early"}) {
		t.Fatal("candidate sent before local description")
	}
	held := l.FlushLocalCandidates()
	if len(held) != 1 || held[0].Candidate != "early" {
		t.Fatalf("held = %+v", held)
	}
	if !l.QueueLocalCandidate(webrtc.ICECandidateInit{Candidate: "late"}) {
		t.Fatal("candidate held after local description")
	}
}

func TestLinkKeepsStreamsByID(t *testing.T) {
	l := newLink("b", &nopConn{})
	ctx := context.Background()
	cam := playout.NewStream(ctx, "b", "stream-1")
	screen := playout.NewStream(ctx, "b", "stream-2")
	l.PutStream(cam)
	l.PutStream(screen)

	if cam.Closed() {
		t.Fatal("second stream id closed the first")
	}
	if got, ok := l.Stream("stream-1"); !ok || got != cam {
		t.Fatal("stream-1 lost")
	}
	if got := l.Streams(); len(got) != 2 || got[0] != cam || got[1] != screen {
		t.Fatalf("streams = %v", got)
	}

	again := playout.NewStream(ctx, "b", "stream-2")
	l.PutStream(again)
	if !screen.Closed() {
		t.Fatal("replaced stream not closed")
	}
	if l.DropStream(screen) {
		t.Fatal("dropped a stream that was already replaced")
	}
	if !l.DropStream(again) {
		t.Fatal("current stream not dropped")
	}
	if _, ok := l.Stream("stream-2"); ok {
		t.Fatal("stream-2 still held")
	}

	if err := l.close(); err != nil {
		t.Fatal(err)
	}
	if !cam.Closed() || len(l.Streams()) != 0 {
		t.Fatal("link close must close its streams")
	}
}

func TestLinkMuteReachesLaterStreams(t *testing.T) {
	l := newLink("b", &nopConn{})
	ctx := context.Background()
	first := playout.NewStream(ctx, "b", "stream-1")
	l.PutStream(first)
	l.SetMuted(core.KindAudio, true)
	if !first.Muted(core.KindAudio) || first.Muted(core.KindVideo) {
		t.Fatal("mute not applied to the live stream")
	}

	second := playout.NewStream(ctx, "b", "stream-2")
	l.PutStream(second)
	sink := second.Subscribe("speaker", core.KindAudio, nil)
	if sink.State() != playout.SinkStateMuted {
		t.Fatalf("late sink state = %v, want muted", sink.State())
	}

	l.SetMuted(core.KindAudio, false)
	if sink.State() != playout.SinkStateOk || l.Muted(core.KindAudio) {
		t.Fatal("unmute not applied")
	}
}

func TestLinkBacklogOrder(t *testing.T) {
	l := newLink("b", &nopConn{})
	l.Begin()
	var got []int
	for i := 1; i <= 3; i++ {
		l.Defer(func() { got = append(got, i) })
	}
	if l.BacklogLen() != 3 {
		t.Fatalf("backlog = %d", l.BacklogLen())
	}
	l.End()
	for fn, ok := l.Next(); ok; fn, ok = l.Next() {
		fn()
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("replayed %v", got)
	}
}
