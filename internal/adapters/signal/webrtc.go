package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

// handleRelay forwards offer/answer/candidate frames to their target with the
// sender id stamped by the server.
func (ctl *SignalWSController) handleRelay(sid core.SessionID, self domain.ParticipantID, env Envelope) {
	if env.TargetUserID == "" {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("relay without target, dropped")
		return
	}
	if env.TargetUserID == string(self) {
		return
	}
	env.UserID = string(self)
	frame, err := marshalEnvelope(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay marshal")
		return
	}
	if err := ctl.Board.Forward(sid, domain.ParticipantID(env.TargetUserID), frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("target", env.TargetUserID).Str("type", env.Type).Msg("relay failed")
	}
}

func marshalEnvelope(env Envelope) (core.Frame, error) {
	return json.Marshal(env)
}
