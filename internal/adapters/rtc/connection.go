package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var (
	ErrNoSender = errors.New("no sender for track kind")
	ErrClosed   = errors.New("connection closed")
)

type localTrack struct {
	track  webrtc.TrackLocal
	sender *webrtc.RTPSender
}

// WebRTCConnection is a core.MediaConnection over a pion PeerConnection. When
// a rollback is refused it rebuilds the PeerConnection with the same tracks
// and callbacks.
type WebRTCConnection struct {
	api    *webrtc.API
	cfg    webrtc.Configuration
	remote domain.ParticipantID

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	gen    int
	tracks []*localTrack
	closed bool

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteTrack)
	onFailed func(error)
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, remote domain.ParticipantID) (*WebRTCConnection, error) {
	c := &WebRTCConnection{api: api, cfg: cfg, remote: remote}
	pc, err := c.newPeerConnection()
	if err != nil {
		return nil, err
	}
	c.pc = pc
	return c, nil
}

func (c *WebRTCConnection) newPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := c.api.NewPeerConnection(c.cfg)
	if err != nil {
		return nil, err
	}
	c.gen++
	gen := c.gen

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("remote", string(c.remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	var failOnce sync.Once
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s != webrtc.PeerConnectionStateFailed {
			return
		}
		failOnce.Do(func() {
			if fn := c.callbacks(gen).onFailed; fn != nil {
				fn(fmt.Errorf("peer connection to %s failed", c.remote))
			}
		})
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if fn := c.callbacks(gen).onICE; fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if fn := c.callbacks(gen).onTrack; fn != nil {
			fn(track)
		}
	})

	for _, lt := range c.tracks {
		sender, err := pc.AddTrack(lt.track)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("re-add track %s: %w", lt.track.ID(), err)
		}
		lt.sender = sender
		go drainRTCP(sender)
	}
	return pc, nil
}

type callbackSet struct {
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteTrack)
	onFailed func(error)
}

// callbacks returns the user callbacks, or none when gen is a discarded
// PeerConnection.
func (c *WebRTCConnection) callbacks(gen int) callbackSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return callbackSet{}
	}
	return callbackSet{onICE: c.onICE, onTrack: c.onTrack, onFailed: c.onFailed}
}

// drainRTCP keeps the sender's interceptors running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) peer() (*webrtc.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.pc, nil
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	pc, err := c.peer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	pc, err := c.peer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	pc, err := c.peer()
	if err != nil {
		return err
	}
	return pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) Rollback() error {
	pc, err := c.peer()
	if err != nil {
		return err
	}
	if pc.SignalingState() == webrtc.SignalingStateStable {
		return nil
	}
	rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
	if local := pc.PendingLocalDescription(); local != nil {
		rollback.SDP = local.SDP
	}
	err = pc.SetLocalDescription(rollback)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("rollback refused, rebuilding peer connection")
	return c.rebuild()
}

func (c *WebRTCConnection) rebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	old := c.pc
	pc, err := c.newPeerConnection()
	if err != nil {
		return err
	}
	c.pc = pc
	if err := old.Close(); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close replaced peer connection")
	}
	return nil
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	pc, err := c.peer()
	if err != nil {
		return err
	}
	return pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) AddTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.tracks = append(c.tracks, &localTrack{track: track, sender: sender})
	go drainRTCP(sender)
	return nil
}

func (c *WebRTCConnection) RemoveTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for i, lt := range c.tracks {
		if lt.track.ID() != track.ID() {
			continue
		}
		if err := c.pc.RemoveTrack(lt.sender); err != nil {
			return err
		}
		c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
		return nil
	}
	return fmt.Errorf("track %s not attached", track.ID())
}

// ReplaceTrack swaps the first sender of kind.
func (c *WebRTCConnection) ReplaceTrack(kind core.TrackKind, track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, lt := range c.tracks {
		if lt.track.Kind() != kind {
			continue
		}
		if err := lt.sender.ReplaceTrack(track); err != nil {
			return err
		}
		lt.track = track
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoSender, kind)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

// OnFailed sets application-level callback for a failed connection.
func (c *WebRTCConnection) OnFailed(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailed = fn
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	c.mu.Unlock()

	if err := pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	return nil
}
