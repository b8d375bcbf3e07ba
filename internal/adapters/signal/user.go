package signal

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

const sessionParticipantKey = "participant_id"

// resolveParticipant takes the id from the query, then from the browser
// session, and otherwise mints one and remembers it in the session.
func resolveParticipant(c *gin.Context) (domain.ParticipantID, error) {
	if q := c.Query("userId"); q != "" {
		id := domain.ParticipantID(q)
		return id, id.Validate()
	}

	sess := sessions.Default(c)
	if v, ok := sess.Get(sessionParticipantKey).(string); ok && v != "" {
		id := domain.ParticipantID(v)
		return id, id.Validate()
	}

	id := domain.NewParticipantID()
	sess.Set(sessionParticipantKey, string(id))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("save session")
	}
	log.Info().Str("module", "signal").Str("user", string(id)).Msg("minted participant id")
	return id, nil
}
