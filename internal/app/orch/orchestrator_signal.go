package orch

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/app/mesh"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

func (o *Orchestrator) onSignal(epoch uint64, ev core.SignalEvent) {
	s := o.sess
	if s == nil || s.epoch != epoch {
		return
	}
	if ev.Err != nil {
		if s.degraded {
			return
		}
		s.degraded = true
		log.Warn().Err(ev.Err).Str("module", "orch").Str("room", string(s.room)).Int("links", s.table.Len()).Msg("signaling lost, keeping links")
		o.events.Degraded.Publish(events.SessionDegraded{Err: ev.Err})
		return
	}
	o.dispatch(s, ev.Msg)
}

func (o *Orchestrator) dispatch(s *session, msg core.SignalMessage) {
	if msg.From == "" || msg.From == s.self {
		return
	}
	if msg.To != "" && msg.To != s.self {
		o.recordAnomaly(core.ProtocolAnomaly{Remote: msg.From, Kind: msg.Kind, Reason: "addressed to " + string(msg.To)})
		return
	}

	switch msg.Kind {
	case core.SignalUserJoined:
		o.onUserJoined(s, msg.From)
	case core.SignalUserLeft:
		o.onUserLeft(s, msg.From)
	case core.SignalOffer, core.SignalAnswer, core.SignalCandidate:
		if s.table.Retired(msg.From) {
			log.Debug().Str("module", "orch").Str("remote", string(msg.From)).Str("kind", string(msg.Kind)).Msg("ignored message from retired participant")
			return
		}
		o.onLinkMessage(s, msg)
	default:
		o.recordAnomaly(core.ProtocolAnomaly{Remote: msg.From, Kind: msg.Kind, Reason: "unknown message type"})
	}
}

func (o *Orchestrator) onUserJoined(s *session, remote domain.ParticipantID) {
	if old, ok := s.table.Get(remote); ok {
		// The remote reconnected with fresh state; the old link cannot recover.
		log.Info().Str("module", "orch").Str("remote", string(remote)).Str("state", old.State().String()).Msg("participant rejoined, resetting link")
		s.table.Remove(remote)
	}
	s.table.Forget(remote)

	l, _, err := o.ensureLink(s, remote)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("remote", string(remote)).Msg("create link")
		o.events.Failed.Publish(events.LinkFailed{ID: remote, Err: err})
		return
	}
	log.Info().Str("module", "orch").Str("remote", string(remote)).Msg("participant joined")
	o.events.Joined.Publish(events.ParticipantJoined{ID: remote})

	if o.shouldInitiate(s.self, remote) {
		o.withLink(l, func() { o.startOffer(s, l) })
	}
}

func (o *Orchestrator) shouldInitiate(self, remote domain.ParticipantID) bool {
	if o.cfg.Initiator == InitiateAlways {
		return true
	}
	return self.Less(remote)
}

func (o *Orchestrator) onUserLeft(s *session, remote domain.ParticipantID) {
	if !s.table.Remove(remote) {
		return
	}
	log.Info().Str("module", "orch").Str("remote", string(remote)).Msg("participant left")
	o.events.Left.Publish(events.ParticipantLeft{ID: remote})
}

func (o *Orchestrator) onLinkMessage(s *session, msg core.SignalMessage) {
	l, ok := s.table.Get(msg.From)
	switch {
	case ok:
	case msg.Kind == core.SignalOffer:
		var err error
		if l, _, err = o.ensureLink(s, msg.From); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("remote", string(msg.From)).Msg("create link for offer")
			return
		}
		log.Info().Str("module", "orch").Str("remote", string(msg.From)).Msg("offer from unknown participant")
		o.events.Joined.Publish(events.ParticipantJoined{ID: msg.From})
	default:
		o.recordAnomaly(core.ProtocolAnomaly{Remote: msg.From, Kind: msg.Kind, Reason: "no link for participant"})
		return
	}

	o.withLink(l, func() {
		switch msg.Kind {
		case core.SignalOffer:
			o.onOffer(s, l, msg.SDP)
		case core.SignalAnswer:
			o.onAnswer(s, l, msg.SDP)
		case core.SignalCandidate:
			o.onRemoteCandidate(l, msg.Candidate)
		}
	})
}

// withLink runs fn now, or after the operation in flight on l completes.
func (o *Orchestrator) withLink(l *mesh.Link, fn func()) {
	if l.Closed() {
		return
	}
	if l.Busy() {
		l.Defer(fn)
		return
	}
	fn()
}

// finish ends the operation in flight and replays deferred work until
// something starts a new operation.
func (o *Orchestrator) finish(l *mesh.Link) {
	l.End()
	for !l.Busy() && !l.Closed() {
		fn, ok := l.Next()
		if !ok {
			return
		}
		fn()
	}
}

// startOffer moves Idle/Connected -> Offering -> AwaitingAnswer.
func (o *Orchestrator) startOffer(s *session, l *mesh.Link) {
	if !l.CanInitiate() {
		return
	}
	if err := l.Transition(mesh.Offering); err != nil {
		o.failLink(s, l, err)
		return
	}
	l.Begin()
	conn := l.Conn
	o.async(func() func() {
		sd, err := conn.CreateOffer()
		return func() { o.offerCreated(s, l, sd, err) }
	})
}

func (o *Orchestrator) offerCreated(s *session, l *mesh.Link, sd webrtc.SessionDescription, err error) {
	if l.Closed() {
		return
	}
	if err != nil {
		o.failLink(s, l, &core.NegotiationError{Remote: l.Remote, Op: "create offer", Reason: core.ErrInvalidState, Err: err})
		return
	}
	o.send(s, core.SignalMessage{Kind: core.SignalOffer, From: s.self, To: l.Remote, SDP: sd.SDP})
	if err := l.Transition(mesh.AwaitingAnswer); err != nil {
		o.failLink(s, l, err)
		return
	}
	o.flushCandidates(s, l)
	o.finish(l)
}

func (o *Orchestrator) onOffer(s *session, l *mesh.Link, sdp string) {
	switch l.State() {
	case mesh.Offering, mesh.AwaitingAnswer:
		if s.self.Less(l.Remote) {
			o.recordAnomaly(core.ProtocolAnomaly{Remote: l.Remote, Kind: core.SignalOffer, State: l.State().String(), Reason: "glare: keeping local offer"})
			return
		}
		o.rollbackAndAnswer(s, l, sdp)
	case mesh.Idle, mesh.Connected:
		o.answer(s, l, sdp)
	default:
		o.recordAnomaly(core.ProtocolAnomaly{Remote: l.Remote, Kind: core.SignalOffer, State: l.State().String(), Reason: "offer while answering"})
	}
}

// rollbackAndAnswer discards our pending offer, returns to Idle and answers.
func (o *Orchestrator) rollbackAndAnswer(s *session, l *mesh.Link, sdp string) {
	log.Debug().Str("module", "orch").Str("remote", string(l.Remote)).Msg("glare: rolling back local offer")
	l.Begin()
	conn := l.Conn
	o.async(func() func() {
		err := conn.Rollback()
		return func() {
			if l.Closed() {
				return
			}
			if err != nil {
				o.failLink(s, l, &core.NegotiationError{Remote: l.Remote, Op: "rollback", Reason: core.ErrInvalidState, Err: err})
				return
			}
			if err := l.Transition(mesh.Idle); err != nil {
				o.failLink(s, l, err)
				return
			}
			o.answer(s, l, sdp)
		}
	})
}

// answer moves Idle/Connected -> Answering -> Connected.
func (o *Orchestrator) answer(s *session, l *mesh.Link, sdp string) {
	if err := l.Transition(mesh.Answering); err != nil {
		o.failLink(s, l, err)
		return
	}
	l.Begin()
	conn := l.Conn
	pending := l.TakePending()
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	o.async(func() func() {
		if err := conn.SetRemoteDescription(offer); err != nil {
			return func() {
				o.failLink(s, l, &core.NegotiationError{Remote: l.Remote, Op: "apply offer", Reason: core.ErrRemoteRejected, Err: err})
			}
		}
		candErrs := applyCandidates(conn, pending)
		sd, err := conn.CreateAnswer()
		return func() { o.answerCreated(s, l, sd, err, candErrs) }
	})
}

func (o *Orchestrator) answerCreated(s *session, l *mesh.Link, sd webrtc.SessionDescription, err error, candErrs []error) {
	if l.Closed() {
		return
	}
	l.MarkRemoteDescription()
	o.reportCandidateErrors(l, candErrs)
	if err != nil {
		o.failLink(s, l, &core.NegotiationError{Remote: l.Remote, Op: "create answer", Reason: core.ErrInvalidState, Err: err})
		return
	}
	o.send(s, core.SignalMessage{Kind: core.SignalAnswer, From: s.self, To: l.Remote, SDP: sd.SDP})
	if err := l.Transition(mesh.Connected); err != nil {
		o.failLink(s, l, err)
		return
	}
	o.flushCandidates(s, l)
	o.finish(l)
}

// onAnswer applies an answer only while AwaitingAnswer.
func (o *Orchestrator) onAnswer(s *session, l *mesh.Link, sdp string) {
	if l.State() != mesh.AwaitingAnswer {
		o.recordAnomaly(core.ProtocolAnomaly{Remote: l.Remote, Kind: core.SignalAnswer, State: l.State().String(), Reason: "answer outside awaiting-answer"})
		return
	}
	l.Begin()
	conn := l.Conn
	pending := l.TakePending()
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	o.async(func() func() {
		if err := conn.SetRemoteDescription(answer); err != nil {
			return func() {
				o.failLink(s, l, &core.NegotiationError{Remote: l.Remote, Op: "apply answer", Reason: core.ErrRemoteRejected, Err: err})
			}
		}
		candErrs := applyCandidates(conn, pending)
		return func() {
			if l.Closed() {
				return
			}
			l.MarkRemoteDescription()
			o.reportCandidateErrors(l, candErrs)
			if err := l.Transition(mesh.Connected); err != nil {
				o.failLink(s, l, err)
				return
			}
			o.finish(l)
		}
	})
}

func applyCandidates(conn core.MediaConnection, cands []webrtc.ICECandidateInit) []error {
	var errs []error
	for _, c := range cands {
		if err := conn.AddICECandidate(c); err != nil {
			errs = append(errs, fmt.Errorf("candidate %q: %w", c.Candidate, err))
		}
	}
	return errs
}

func (o *Orchestrator) reportCandidateErrors(l *mesh.Link, errs []error) {
	for _, err := range errs {
		o.recordAnomaly(core.ProtocolAnomaly{Remote: l.Remote, Kind: core.SignalCandidate, State: l.State().String(), Reason: err.Error()})
	}
}

// onRemoteCandidate applies c now or buffers it until the remote description exists.
func (o *Orchestrator) onRemoteCandidate(l *mesh.Link, c *webrtc.ICECandidateInit) {
	if c == nil {
		o.recordAnomaly(core.ProtocolAnomaly{Remote: l.Remote, Kind: core.SignalCandidate, State: l.State().String(), Reason: "empty candidate"})
		return
	}
	if !l.HasRemoteDescription() {
		l.BufferCandidate(*c)
		return
	}
	if err := l.Conn.AddICECandidate(*c); err != nil {
		o.reportCandidateErrors(l, []error{fmt.Errorf("candidate %q: %w", c.Candidate, err)})
	}
}

func (o *Orchestrator) onLocalCandidate(s *session, l *mesh.Link, c webrtc.ICECandidateInit) {
	if l.Closed() || !o.current(s) {
		return
	}
	if l.QueueLocalCandidate(c) {
		o.send(s, core.SignalMessage{Kind: core.SignalCandidate, From: s.self, To: l.Remote, Candidate: &c})
	}
}

func (o *Orchestrator) flushCandidates(s *session, l *mesh.Link) {
	for _, c := range l.FlushLocalCandidates() {
		o.send(s, core.SignalMessage{Kind: core.SignalCandidate, From: s.self, To: l.Remote, Candidate: &c})
	}
}

func (o *Orchestrator) send(s *session, msg core.SignalMessage) {
	if err := s.transport.Send(msg); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("remote", string(msg.To)).Str("kind", string(msg.Kind)).Msg("signal send failed")
	}
}
