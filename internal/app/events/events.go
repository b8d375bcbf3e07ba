package events

import (
	"github.com/dkeye/VoiceMesh/internal/app/playout"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

type ParticipantJoined struct {
	ID domain.ParticipantID
}

type ParticipantLeft struct {
	ID domain.ParticipantID
}

// RemoteTrackAvailable fires once per distinct remote stream id.
type RemoteTrackAvailable struct {
	ID     domain.ParticipantID
	Stream *playout.Stream
}

// SessionDegraded reports loss of the signaling channel after a successful
// join. Established links are kept.
type SessionDegraded struct {
	Err error
}

// LinkFailed reports a link closed after an unrecoverable negotiation or
// connectivity failure.
type LinkFailed struct {
	ID  domain.ParticipantID
	Err error
}

// Bus groups the session's topics. Listeners run on the session loop and must
// not block or call back into blocking session methods.
type Bus struct {
	Joined   Topic[ParticipantJoined]
	Left     Topic[ParticipantLeft]
	Track    Topic[RemoteTrackAvailable]
	Degraded Topic[SessionDegraded]
	Failed   Topic[LinkFailed]
}

func NewBus() *Bus { return &Bus{} }
