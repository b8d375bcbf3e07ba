package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/app/mesh"
	"github.com/dkeye/VoiceMesh/internal/app/playout"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

// ShareMode selects how a screen capture reaches the links.
type ShareMode int

const (
	// ShareReplace swaps the outgoing camera track for the screen track.
	ShareReplace ShareMode = iota
	// ShareAdd sends the screen as an extra track and renegotiates.
	ShareAdd
)

func (m ShareMode) String() string {
	if m == ShareAdd {
		return "add"
	}
	return "replace"
}

// ToggleAudio enables or disables the outgoing microphone track. Capture and
// local preview keep running.
func (o *Orchestrator) ToggleAudio(enabled bool) error {
	return o.toggle(core.KindAudio, enabled)
}

// ToggleVideo enables or disables the outgoing camera track.
func (o *Orchestrator) ToggleVideo(enabled bool) error {
	return o.toggle(core.KindVideo, enabled)
}

func (o *Orchestrator) toggle(kind core.TrackKind, enabled bool) error {
	var (
		err     error
		changed bool
	)
	if cerr := o.call(func() {
		if o.sess == nil {
			err = core.ErrNotJoined
			return
		}
		if _, ok := o.sess.local.Track(kind); ok && o.deps.Media.TrackEnabled(kind) == enabled {
			return
		}
		err = o.deps.Media.SetTrackEnabled(kind, enabled)
		changed = err == nil
	}); cerr != nil {
		return cerr
	}
	logger := log.With().Str("module", "orch").Str("kind", kind.String()).Bool("enabled", enabled).Logger()
	switch {
	case err != nil:
	case changed:
		logger.Info().Msg("track toggled")
	default:
		logger.Debug().Msg("track already in requested state")
	}
	return err
}

// LocalMedia reports whether the outgoing microphone and camera are on.
type LocalMedia struct {
	Audio   bool
	Video   bool
	Sharing bool
}

func (o *Orchestrator) LocalMedia() (LocalMedia, error) {
	var (
		out LocalMedia
		err error
	)
	if cerr := o.call(func() {
		if o.sess == nil {
			err = core.ErrNotJoined
			return
		}
		out.Audio = o.deps.Media.TrackEnabled(core.KindAudio)
		out.Video = o.deps.Media.TrackEnabled(core.KindVideo)
		out.Sharing = o.sess.screen != nil
	}); cerr != nil {
		return LocalMedia{}, cerr
	}
	return out, err
}

// ShareScreen captures the screen and sends it on every link. Calling it
// while already sharing replaces the previous capture.
func (o *Orchestrator) ShareScreen(ctx context.Context, mode ShareMode) error {
	var s *session
	if err := o.call(func() { s = o.sess }); err != nil {
		return err
	}
	if s == nil {
		return core.ErrNotJoined
	}

	h, err := o.deps.Media.AcquireScreenShare(ctx)
	if err != nil {
		return err
	}
	track, ok := h.Track(core.KindVideo)
	if !ok {
		o.deps.Media.Release(h)
		return &core.AcquireError{Reason: core.ErrDeviceUnavailable}
	}

	var (
		installErr error
		links      int
	)
	err = o.call(func() {
		if !o.current(s) {
			installErr = core.ErrNotJoined
			return
		}
		if s.screen != nil {
			o.stopScreen(s)
		}
		if _, hasCam := s.local.Track(core.KindVideo); !hasCam && mode == ShareReplace {
			mode = ShareAdd
		}
		s.screen = h
		s.screenMode = mode
		s.table.ForEach(func(l *mesh.Link) { o.attachScreen(s, l, track) })
		links = s.table.Len()
	})
	if err == nil {
		err = installErr
	}
	if err != nil {
		o.deps.Media.Release(h)
		return err
	}

	go o.watchScreen(s, h)
	log.Info().Str("module", "orch").Str("mode", mode.String()).Int("links", links).Msg("screen share started")
	return nil
}

func (o *Orchestrator) attachScreen(s *session, l *mesh.Link, track webrtc.TrackLocal) {
	if l.Closed() {
		return
	}
	switch s.screenMode {
	case ShareReplace:
		if err := l.Conn.ReplaceTrack(core.KindVideo, track); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("remote", string(l.Remote)).Msg("replace video with screen")
		}
	case ShareAdd:
		if err := l.Conn.AddTrack(track); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("remote", string(l.Remote)).Msg("add screen track")
			return
		}
		o.withLink(l, func() { o.startOffer(s, l) })
	}
}

// watchScreen restores the camera when the capture ends on its own.
func (o *Orchestrator) watchScreen(s *session, h core.MediaHandle) {
	select {
	case <-h.Ended():
		o.post(func() {
			if o.current(s) && s.screen == h {
				log.Info().Str("module", "orch").Msg("screen capture ended")
				o.stopScreen(s)
			}
		})
	case <-o.ctx.Done():
	}
}

// StopScreenShare restores the camera track on every link. It is a no-op
// when nothing is shared.
func (o *Orchestrator) StopScreenShare() error {
	return o.call(func() {
		if o.sess == nil || o.sess.screen == nil {
			return
		}
		o.stopScreen(o.sess)
	})
}

func (o *Orchestrator) stopScreen(s *session) {
	h := s.screen
	screenTrack, _ := h.Track(core.KindVideo)
	camTrack, hasCam := s.local.Track(core.KindVideo)
	s.screen = nil

	s.table.ForEach(func(l *mesh.Link) {
		if l.Closed() {
			return
		}
		switch s.screenMode {
		case ShareReplace:
			if !hasCam {
				return
			}
			if err := l.Conn.ReplaceTrack(core.KindVideo, camTrack); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("remote", string(l.Remote)).Msg("restore camera track")
			}
		case ShareAdd:
			if err := l.Conn.RemoveTrack(screenTrack); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("remote", string(l.Remote)).Msg("remove screen track")
				return
			}
			o.withLink(l, func() { o.startOffer(s, l) })
		}
	})
	o.deps.Media.Release(h)
	log.Info().Str("module", "orch").Msg("screen share stopped")
}

// outgoingTracks is what a new connection sends right now.
func (o *Orchestrator) outgoingTracks(s *session) []webrtc.TrackLocal {
	tracks := s.local.Tracks()
	if s.screen == nil {
		return tracks
	}
	screenTrack, ok := s.screen.Track(core.KindVideo)
	if !ok {
		return tracks
	}
	if s.screenMode == ShareAdd {
		return append(tracks, screenTrack)
	}
	out := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		if t.Kind() == core.KindVideo {
			t = screenTrack
		}
		out = append(out, t)
	}
	return out
}

// onRemoteTrack groups incoming tracks into streams by stream id. Each live
// stream is announced once; an id whose stream has ended is announced again
// when it returns.
func (o *Orchestrator) onRemoteTrack(l *mesh.Link, t core.RemoteTrack) {
	if l.Closed() {
		return
	}
	logger := log.With().Str("module", "orch").Str("remote", string(l.Remote)).Str("stream_id", t.StreamID()).Logger()
	if cur, ok := l.Stream(t.StreamID()); ok {
		err := cur.AddTrack(t)
		if err == nil || errors.Is(err, playout.ErrTrackRelayed) {
			return
		}
		logger.Debug().Err(err).Msg("stream ended, starting a new one")
	}
	st := playout.NewStream(o.ctx, l.Remote, t.StreamID())
	if err := st.AddTrack(t); err != nil {
		logger.Warn().Err(err).Msg("failed to relay remote track")
		return
	}
	l.PutStream(st)
	go o.watchStream(l, st)
	logger.Info().Str("kind", t.Kind().String()).Msg("remote stream available")
	o.events.Track.Publish(events.RemoteTrackAvailable{ID: l.Remote, Stream: st})
}

// watchStream forgets st once all of its tracks have ended.
func (o *Orchestrator) watchStream(l *mesh.Link, st *playout.Stream) {
	select {
	case <-st.Done():
		o.post(func() {
			if l.DropStream(st) {
				log.Debug().Str("module", "orch").Str("remote", string(l.Remote)).Str("stream_id", st.ID).Msg("remote stream ended")
			}
		})
	case <-o.ctx.Done():
	}
}

// MuteRemote stops or resumes local delivery of one kind of media from
// remote. The setting also covers streams the remote starts later.
func (o *Orchestrator) MuteRemote(remote domain.ParticipantID, kind core.TrackKind, muted bool) error {
	var err error
	if cerr := o.call(func() {
		if o.sess == nil {
			err = core.ErrNotJoined
			return
		}
		l, ok := o.sess.table.Get(remote)
		if !ok || l.Closed() {
			err = fmt.Errorf("%w: %s", core.ErrNoSuchMember, remote)
			return
		}
		l.SetMuted(kind, muted)
	}); cerr != nil {
		return cerr
	}
	if err == nil {
		log.Info().Str("module", "orch").Str("remote", string(remote)).Str("kind", kind.String()).Bool("muted", muted).Msg("remote media muted")
	}
	return err
}
