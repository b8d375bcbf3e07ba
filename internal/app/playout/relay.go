package playout

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceMesh/internal/core"
)

// Relay drains one remote track and fans its packets out to sinks.
// Reading continuously also keeps the receiver's RTCP feedback flowing.
type Relay struct {
	Src core.RemoteTrack

	mu    sync.RWMutex
	sinks map[string]*Sink

	packets atomic.Uint64
	done    chan struct{}
}

func NewRelay(src core.RemoteTrack) *Relay {
	return &Relay{
		Src:   src,
		sinks: make(map[string]*Sink),
		done:  make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all sinks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done, marking all sinks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		r.packets.Add(1)
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	if len(r.sinks) == 0 {
		r.mu.RUnlock()
		return
	}
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := s.W.WriteRTP(pkt); err != nil {
				logger.Warn().
					Err(err).
					Str("sink", name).
					Msg("relay write RTP error, marking sink as delete")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range dirty {
		if s, ok := r.sinks[name]; ok && s.State() == SinkStateDelete {
			delete(r.sinks, name)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		s.MarkDelete()
	}
}

func (r *Relay) addSink(s *Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[s.Name] = s
}

func (r *Relay) sinkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Packets is the number of RTP packets read so far.
func (r *Relay) Packets() uint64 { return r.packets.Load() }

// Done is closed once the read loop has stopped.
func (r *Relay) Done() <-chan struct{} { return r.done }
