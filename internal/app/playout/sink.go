package playout

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// Writer consumes RTP packets. *webrtc.TrackLocalStaticRTP satisfies it.
type Writer interface {
	WriteRTP(p *rtp.Packet) error
}

// Sink is a single subscriber of a remote track.
type Sink struct {
	Name  string
	W     Writer
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func NewSink(name string, w Writer) *Sink {
	return &Sink{Name: name, W: w}
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkOk() {
	s.state.CompareAndSwap(int32(SinkStateMuted), int32(SinkStateOk))
}

func (s *Sink) MarkMuted() {
	s.state.CompareAndSwap(int32(SinkStateOk), int32(SinkStateMuted))
}

// MarkDelete is final.
func (s *Sink) MarkDelete() {
	s.state.Store(int32(SinkStateDelete))
}
