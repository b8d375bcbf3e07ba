package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

// handleJoin puts the newcomer in the room, tells everyone else and tells the
// newcomer about everyone already there.
func (ctl *SignalWSController) handleJoin(sid core.SessionID, room domain.RoomID, self domain.ParticipantID) {
	peers, err := ctl.Board.Join(sid, room)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join")
		ctl.Board.Kick(sid)
		return
	}

	joined := Envelope{Type: string(core.SignalUserJoined), UserID: string(self), RoomID: string(room)}
	frame, err := marshalEnvelope(joined)
	if err == nil {
		ctl.Board.Broadcast(room, self, frame)
	}

	sess, ok := ctl.Board.Registry.GetSession(sid)
	if !ok {
		return
	}
	for _, peer := range peers {
		ctl.sendJSON(sess.Signal(), Envelope{Type: string(core.SignalUserJoined), UserID: string(peer), RoomID: string(room)})
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Int("peers", len(peers)).Msg("join")
}

// handleDisconnect removes sid and tells the room, unless a newer connection
// of the same participant already took its place.
func (ctl *SignalWSController) handleDisconnect(sid core.SessionID) {
	room, id, ok := ctl.Board.OnDisconnect(sid)
	if !ok {
		return
	}
	left := Envelope{Type: string(core.SignalUserLeft), UserID: string(id), RoomID: string(room)}
	frame, err := marshalEnvelope(left)
	if err != nil {
		return
	}
	res := ctl.Board.Broadcast(room, id, frame)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Int("notified", res.SendTo).Msg("leave")
}
