package playout

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var (
	ErrStreamClosed = errors.New("stream closed")
	ErrTrackRelayed = errors.New("track already relayed")
)

// Stream is the set of remote tracks one participant sends under one stream id.
type Stream struct {
	ID     string
	Remote domain.ParticipantID

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.RWMutex
	relays map[string]*Relay
	subs   map[core.TrackKind][]*Sink
	muted  map[core.TrackKind]bool
	live   int
	closed bool

	done     chan struct{}
	doneOnce sync.Once
}

func NewStream(parent context.Context, remote domain.ParticipantID, id string) *Stream {
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		ID:     id,
		Remote: remote,
		ctx:    ctx,
		cancel: cancel,
		relays: make(map[string]*Relay),
		subs:   make(map[core.TrackKind][]*Sink),
		muted:  make(map[core.TrackKind]bool),
		done:   make(chan struct{}),
	}
}

// AddTrack starts a relay for t. A stream whose tracks have all ended is
// finished and takes no more tracks.
func (s *Stream) AddTrack(t core.RemoteTrack) error {
	logger := log.With().
		Str("module", "playout").
		Str("remote", string(s.Remote)).
		Str("stream_id", s.ID).
		Str("track_id", t.ID()).
		Str("kind", t.Kind().String()).
		Logger()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if _, ok := s.relays[t.ID()]; ok {
		s.mu.Unlock()
		return ErrTrackRelayed
	}
	relay := NewRelay(t)
	for _, sink := range s.subs[t.Kind()] {
		relay.addSink(sink)
	}
	s.relays[t.ID()] = relay
	s.live++
	s.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	s.wg.Go(func() {
		relay.loop(s.ctx, &logger)
		s.relayEnded()
	})
	return nil
}

// relayEnded finishes the stream once its last relay is gone.
func (s *Stream) relayEnded() {
	s.mu.Lock()
	s.live--
	last := s.live == 0 && !s.closed
	if last {
		s.closed = true
	}
	s.mu.Unlock()
	if last {
		s.cancel()
		s.finish()
		log.Debug().Str("module", "playout").Str("remote", string(s.Remote)).Str("stream_id", s.ID).Msg("all tracks ended")
	}
}

func (s *Stream) finish() { s.doneOnce.Do(func() { close(s.done) }) }

// Subscribe attaches a sink to every current and future track of kind. The
// sink starts muted when kind is muted.
func (s *Stream) Subscribe(name string, kind core.TrackKind, w Writer) *Sink {
	sink := NewSink(name, w)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted[kind] {
		sink.MarkMuted()
	}
	s.subs[kind] = append(s.subs[kind], sink)
	for _, r := range s.relays {
		if r.Src.Kind() == kind {
			r.addSink(sink)
		}
	}
	return sink
}

// SetMuted pauses or resumes delivery to the sinks subscribed to kind,
// including sinks subscribed later. Sinks marked for delete stay deleted.
func (s *Stream) SetMuted(kind core.TrackKind, muted bool) {
	s.mu.Lock()
	s.muted[kind] = muted
	sinks := slices.Clone(s.subs[kind])
	s.mu.Unlock()
	for _, sink := range sinks {
		if muted {
			sink.MarkMuted()
		} else {
			sink.MarkOk()
		}
	}
}

func (s *Stream) Muted(kind core.TrackKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted[kind]
}

// Tracks returns the relayed tracks ordered by track id.
func (s *Stream) Tracks() []*Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Relay, 0, len(s.relays))
	for _, r := range s.relays {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Src.ID() < out[j].Src.ID() })
	return out
}

// Packets sums the packets read over all tracks.
func (s *Stream) Packets() uint64 {
	var n uint64
	for _, r := range s.Tracks() {
		n += r.Packets()
	}
	return n
}

// Close stops relaying. Read loops blocked in ReadRTP exit once the owning
// connection is closed.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	relays := make([]*Relay, 0, len(s.relays))
	for _, r := range s.relays {
		relays = append(relays, r)
	}
	s.mu.Unlock()

	s.cancel()
	for _, r := range relays {
		r.markAllDelete()
	}
	s.finish()
	log.Debug().Str("module", "playout").Str("remote", string(s.Remote)).Str("stream_id", s.ID).Msg("stream closed")
}

// Done is closed when the stream is closed or all of its tracks have ended.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Closed reports whether the stream takes no more tracks.
func (s *Stream) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Wait blocks until every relay loop has returned.
func (s *Stream) Wait() { s.wg.Wait() }
