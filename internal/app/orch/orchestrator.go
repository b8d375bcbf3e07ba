// Package orch runs one participant's side of a full-mesh session.
//
// Every state change happens on a single loop goroutine: inbound signaling,
// user actions, connection callbacks and completions of SDP work. SDP work
// itself runs on background goroutines and posts its result back.
package orch

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/app/mesh"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

// InitiatorPolicy decides which side of a new pair sends the first offer.
type InitiatorPolicy string

const (
	// InitiateLowerID lets only the participant with the smaller id offer.
	InitiateLowerID InitiatorPolicy = "lower-id"
	// InitiateAlways makes both sides offer and relies on the glare rule.
	InitiateAlways InitiatorPolicy = "always"
)

const defaultAnomalyLimit = 64

type Config struct {
	Constraints  core.Constraints
	Initiator    InitiatorPolicy
	StaticICE    []webrtc.ICEServer
	AnomalyLimit int
}

// Deps are the collaborators of an Orchestrator. ICE may be nil.
type Deps struct {
	Media      core.MediaSource
	Transports core.TransportFactory
	Conns      core.ConnectionFactory
	ICE        core.ICEServerSource
}

type Orchestrator struct {
	deps   Deps
	cfg    Config
	events *events.Bus

	ctx      context.Context
	cancel   context.CancelFunc
	box      *mailbox
	loopDone chan struct{}
	ops      conc.WaitGroup
	joinMu   sync.Mutex

	// Loop-owned.
	sess      *session
	epoch     uint64
	anomalies []core.ProtocolAnomaly
}

// session is everything one Join acquired.
type session struct {
	epoch      uint64
	room       domain.RoomID
	self       domain.ParticipantID
	transport  core.SignalTransport
	table      *mesh.Table
	local      core.MediaHandle
	screen     core.MediaHandle
	screenMode ShareMode
	iceServers []webrtc.ICEServer
	degraded   bool
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.Initiator == "" {
		cfg.Initiator = InitiateLowerID
	}
	if cfg.AnomalyLimit <= 0 {
		cfg.AnomalyLimit = defaultAnomalyLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		events:   events.NewBus(),
		ctx:      ctx,
		cancel:   cancel,
		box:      newMailbox(),
		loopDone: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *Orchestrator) Events() *events.Bus { return o.events }

func (o *Orchestrator) loop() {
	defer close(o.loopDone)
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.box.signal:
		}
		for _, fn := range o.box.drain() {
			fn()
		}
	}
}

// post schedules fn on the loop. It never blocks.
func (o *Orchestrator) post(fn func()) bool {
	if o.ctx.Err() != nil {
		return false
	}
	o.box.put(fn)
	return true
}

// call runs fn on the loop and waits for it.
func (o *Orchestrator) call(fn func()) error {
	done := make(chan struct{})
	if !o.post(func() { fn(); close(done) }) {
		return core.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-o.loopDone:
		return core.ErrClosed
	}
}

// async runs work off the loop and posts its completion back.
func (o *Orchestrator) async(work func() func()) {
	o.ops.Go(func() {
		done := work()
		o.post(done)
	})
}

// LinkInfo is a point-in-time view of one link.
type LinkInfo struct {
	Remote  domain.ParticipantID
	State   mesh.State
	History []mesh.State
	Pending int
	Streams []string
	Packets uint64
	Muted   []core.TrackKind
}

// Links returns the current links ordered by remote id.
func (o *Orchestrator) Links() []LinkInfo {
	var out []LinkInfo
	_ = o.call(func() {
		if o.sess == nil {
			return
		}
		o.sess.table.ForEach(func(l *mesh.Link) {
			info := LinkInfo{
				Remote:  l.Remote,
				State:   l.State(),
				History: l.History(),
				Pending: l.PendingCount(),
			}
			for _, st := range l.Streams() {
				info.Streams = append(info.Streams, st.ID)
				info.Packets += st.Packets()
			}
			for _, kind := range []core.TrackKind{core.KindAudio, core.KindVideo} {
				if l.Muted(kind) {
					info.Muted = append(info.Muted, kind)
				}
			}
			out = append(out, info)
		})
	})
	return out
}

// Anomalies returns the most recent protocol anomalies, oldest first.
func (o *Orchestrator) Anomalies() []core.ProtocolAnomaly {
	var out []core.ProtocolAnomaly
	_ = o.call(func() {
		out = append(out, o.anomalies...)
	})
	return out
}

// Self returns the local participant id, or "" when not joined.
func (o *Orchestrator) Self() domain.ParticipantID {
	var id domain.ParticipantID
	_ = o.call(func() {
		if o.sess != nil {
			id = o.sess.self
		}
	})
	return id
}

func (o *Orchestrator) recordAnomaly(a core.ProtocolAnomaly) {
	log.Warn().
		Str("module", "orch").
		Str("remote", string(a.Remote)).
		Str("kind", string(a.Kind)).
		Str("state", a.State).
		Msg(a.Reason)
	if len(o.anomalies) >= o.cfg.AnomalyLimit {
		copy(o.anomalies, o.anomalies[1:])
		o.anomalies = o.anomalies[:len(o.anomalies)-1]
	}
	o.anomalies = append(o.anomalies, a)
}

// Close leaves the room and stops the loop. In-flight SDP work is awaited.
func (o *Orchestrator) Close() {
	o.Leave()
	o.cancel()
	<-o.loopDone
	o.ops.Wait()
}
