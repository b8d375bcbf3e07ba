package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/app/mesh"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

// Join acquires local media, connects signaling and starts dispatching. A
// second Join first leaves the current room. On failure everything acquired
// so far is released and the error is a *core.JoinError.
func (o *Orchestrator) Join(ctx context.Context, room domain.RoomID, self domain.ParticipantID) (core.MediaHandle, error) {
	o.joinMu.Lock()
	defer o.joinMu.Unlock()

	if o.ctx.Err() != nil {
		return nil, &core.JoinError{Stage: "start", Err: core.ErrClosed}
	}
	o.Leave()

	if self == "" {
		self = domain.NewParticipantID()
	}
	if err := room.Validate(); err != nil {
		return nil, &core.JoinError{Stage: "validate", Err: err}
	}
	if err := self.Validate(); err != nil {
		return nil, &core.JoinError{Stage: "validate", Err: err}
	}

	servers := o.resolveICE(ctx)

	local, err := o.deps.Media.AcquireLocal(ctx, o.cfg.Constraints)
	if err != nil {
		return nil, &core.JoinError{Stage: "acquire media", Err: err}
	}

	tr := o.deps.Transports()
	if err := tr.Connect(ctx, room, self); err != nil {
		tr.Close()
		o.deps.Media.Release(local)
		return nil, &core.JoinError{Stage: "connect signaling", Err: err}
	}

	var s *session
	err = o.call(func() {
		o.epoch++
		s = &session{
			epoch:      o.epoch,
			room:       room,
			self:       self,
			transport:  tr,
			local:      local,
			iceServers: servers,
		}
		s.table = mesh.NewTable(o.connector(s))
		o.sess = s
	})
	if err != nil {
		tr.Close()
		o.deps.Media.Release(local)
		return nil, &core.JoinError{Stage: "start", Err: err}
	}

	go o.pump(s.epoch, tr)

	log.Info().
		Str("module", "orch").
		Str("room", string(room)).
		Str("self", string(self)).
		Int("ice_servers", len(servers)).
		Msg("joined")
	return local, nil
}

// resolveICE fetches fresh TURN credentials once per join. Any failure falls
// back to the static list.
func (o *Orchestrator) resolveICE(ctx context.Context) []webrtc.ICEServer {
	if o.deps.ICE == nil {
		return o.cfg.StaticICE
	}
	servers, err := o.deps.ICE.ICEServers(ctx)
	if err != nil || len(servers) == 0 {
		log.Warn().Err(err).Str("module", "orch").Msg("ice credentials unavailable, using static servers")
		return o.cfg.StaticICE
	}
	return servers
}

// pump forwards inbound signaling onto the loop until the transport ends.
func (o *Orchestrator) pump(epoch uint64, tr core.SignalTransport) {
	for ev := range tr.Inbound() {
		if !o.post(func() { o.onSignal(epoch, ev) }) {
			return
		}
	}
}

// Leave closes every link, releases local media and closes signaling. It is
// safe to call at any time and any number of times.
func (o *Orchestrator) Leave() {
	_ = o.call(o.teardown)
}

func (o *Orchestrator) teardown() {
	s := o.sess
	if s == nil {
		return
	}
	o.sess = nil
	n := s.table.Len()
	s.table.Clear()
	if s.screen != nil {
		o.deps.Media.Release(s.screen)
		s.screen = nil
	}
	o.deps.Media.Release(s.local)
	s.transport.Close()
	log.Info().Str("module", "orch").Str("room", string(s.room)).Int("links", n).Msg("left")
}

// current reports whether s is still the active session.
func (o *Orchestrator) current(s *session) bool {
	return s != nil && o.sess == s
}

// connector creates connections for s with every outgoing track attached.
func (o *Orchestrator) connector(s *session) mesh.Connector {
	return func(remote domain.ParticipantID) (core.MediaConnection, error) {
		conn, err := o.deps.Conns.NewConnection(remote, s.iceServers)
		if err != nil {
			return nil, err
		}
		for _, t := range o.outgoingTracks(s) {
			if err := conn.AddTrack(t); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
}

// ensureLink returns the link for remote, wiring callbacks on a new one.
func (o *Orchestrator) ensureLink(s *session, remote domain.ParticipantID) (*mesh.Link, bool, error) {
	l, created, err := s.table.GetOrCreate(remote)
	if err != nil || !created {
		return l, created, err
	}
	l.Conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		o.post(func() { o.onLocalCandidate(s, l, c) })
	})
	l.Conn.OnTrack(func(t core.RemoteTrack) {
		o.post(func() { o.onRemoteTrack(l, t) })
	})
	l.Conn.OnFailed(func(err error) {
		o.post(func() { o.failLink(s, l, err) })
	})
	return l, true, nil
}

// failLink closes one link after an unrecoverable error. Other links are untouched.
func (o *Orchestrator) failLink(s *session, l *mesh.Link, err error) {
	if l.Closed() || !o.current(s) {
		return
	}
	log.Error().Err(err).Str("module", "orch").Str("remote", string(l.Remote)).Str("state", l.State().String()).Msg("link failed")
	s.table.Remove(l.Remote)
	o.events.Failed.Publish(events.LinkFailed{ID: l.Remote, Err: err})
}
