// Package mesh holds the per-remote negotiation state of a full-mesh session.
//
// A Link is owned by the session loop and is not safe for concurrent use.
package mesh

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/app/playout"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

type State int

const (
	Idle State = iota
	Offering
	AwaitingAnswer
	Answering
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case AwaitingAnswer:
		return "awaiting-answer"
	case Answering:
		return "answering"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal moves out of each state. Closed is reachable
// from anywhere and handled separately.
var transitions = map[State][]State{
	Idle:           {Offering, Answering},
	Offering:       {AwaitingAnswer, Idle},
	AwaitingAnswer: {Connected, Idle},
	Answering:      {Connected},
	Connected:      {Offering, Answering},
}

// Link is one media connection to one remote participant.
type Link struct {
	Remote domain.ParticipantID
	Conn   core.MediaConnection

	state   State
	history []State

	pending   []webrtc.ICECandidateInit
	remoteSet bool

	// outbound holds local candidates gathered before our description was sent.
	outbound    []webrtc.ICECandidateInit
	localSignal bool

	// streams holds the live remote streams by stream id.
	streams map[string]*playout.Stream
	muted   map[core.TrackKind]bool

	busy    bool
	backlog []func()
}

func newLink(remote domain.ParticipantID, conn core.MediaConnection) *Link {
	return &Link{
		Remote:  remote,
		Conn:    conn,
		state:   Idle,
		history: []State{Idle},
		streams: make(map[string]*playout.Stream),
		muted:   make(map[core.TrackKind]bool),
	}
}

func (l *Link) State() State { return l.state }

func (l *Link) Closed() bool { return l.state == Closed }

// History returns every state the link has been in, oldest first.
func (l *Link) History() []State {
	out := make([]State, len(l.history))
	copy(out, l.history)
	return out
}

// Transition moves the link to next or fails with core.ErrInvalidState.
func (l *Link) Transition(next State) error {
	if l.state == Closed {
		return fmt.Errorf("%w: link to %s is closed", core.ErrInvalidState, l.Remote)
	}
	if next == Closed {
		l.set(Closed)
		return nil
	}
	for _, s := range transitions[l.state] {
		if s == next {
			l.set(next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrInvalidState, l.state, next)
}

func (l *Link) set(s State) {
	l.state = s
	l.history = append(l.history, s)
}

// CanInitiate reports whether a local offer may start now.
func (l *Link) CanInitiate() bool {
	return !l.busy && (l.state == Idle || l.state == Connected)
}

// HasRemoteDescription reports whether a remote description was applied.
func (l *Link) HasRemoteDescription() bool { return l.remoteSet }

// BufferCandidate keeps c until the first remote description is applied.
func (l *Link) BufferCandidate(c webrtc.ICECandidateInit) {
	l.pending = append(l.pending, c)
}

func (l *Link) PendingCount() int { return len(l.pending) }

// TakePending hands out the buffered candidates in arrival order and empties
// the buffer. It only yields anything before the first remote description.
func (l *Link) TakePending() []webrtc.ICECandidateInit {
	if l.remoteSet {
		return nil
	}
	out := l.pending
	l.pending = nil
	return out
}

// MarkRemoteDescription records that the remote description is set.
func (l *Link) MarkRemoteDescription() { l.remoteSet = true }

// QueueLocalCandidate reports whether c may be sent right away; otherwise it
// is held until FlushLocalCandidates.
func (l *Link) QueueLocalCandidate(c webrtc.ICECandidateInit) bool {
	if l.localSignal {
		return true
	}
	l.outbound = append(l.outbound, c)
	return false
}

// FlushLocalCandidates marks the local description as sent and returns the
// held candidates.
func (l *Link) FlushLocalCandidates() []webrtc.ICECandidateInit {
	l.localSignal = true
	out := l.outbound
	l.outbound = nil
	return out
}

// Stream returns the live stream with the given id.
func (l *Link) Stream(id string) (*playout.Stream, bool) {
	s, ok := l.streams[id]
	return s, ok
}

// Streams returns the live streams ordered by id.
func (l *Link) Streams() []*playout.Stream {
	out := make([]*playout.Stream, 0, len(l.streams))
	for _, s := range l.streams {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *playout.Stream) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// PutStream stores s under its id and applies the link's muted kinds to it.
// A different stream already held under that id is closed. Streams with
// other ids are untouched.
func (l *Link) PutStream(s *playout.Stream) {
	if cur, ok := l.streams[s.ID]; ok && cur != s {
		cur.Close()
	}
	l.streams[s.ID] = s
	for kind, muted := range l.muted {
		if muted {
			s.SetMuted(kind, true)
		}
	}
}

// DropStream forgets s if it is still the stream held under its id.
func (l *Link) DropStream(s *playout.Stream) bool {
	if cur, ok := l.streams[s.ID]; !ok || cur != s {
		return false
	}
	delete(l.streams, s.ID)
	return true
}

// SetMuted pauses or resumes local delivery of the remote's kind tracks on
// every current and future stream.
func (l *Link) SetMuted(kind core.TrackKind, muted bool) {
	l.muted[kind] = muted
	for _, s := range l.streams {
		s.SetMuted(kind, muted)
	}
}

func (l *Link) Muted(kind core.TrackKind) bool { return l.muted[kind] }

func (l *Link) Busy() bool { return l.busy }

// Begin marks an operation in flight.
func (l *Link) Begin() { l.busy = true }

// End clears the in-flight mark.
func (l *Link) End() { l.busy = false }

// Defer queues fn until the in-flight operation finishes.
func (l *Link) Defer(fn func()) { l.backlog = append(l.backlog, fn) }

// Next pops the oldest deferred work item.
func (l *Link) Next() (func(), bool) {
	if len(l.backlog) == 0 {
		return nil, false
	}
	fn := l.backlog[0]
	l.backlog[0] = nil
	l.backlog = l.backlog[1:]
	return fn, true
}

func (l *Link) BacklogLen() int { return len(l.backlog) }

// close releases the connection and drops all queued work.
func (l *Link) close() error {
	if l.state == Closed {
		return nil
	}
	l.set(Closed)
	l.busy = false
	l.backlog = nil
	l.pending = nil
	l.outbound = nil
	for id, s := range l.streams {
		s.Close()
		delete(l.streams, id)
	}
	if l.Conn == nil {
		return nil
	}
	return l.Conn.Close()
}
