package core

import "github.com/dkeye/VoiceMesh/internal/domain"

// SessionID identifies one relay-side WebSocket connection. A participant
// reconnecting with the same id gets a new SessionID.
type SessionID string

// Frame is one encoded signaling message on its way through the relay. The
// relay forwards frames without parsing them.
type Frame []byte

// SignalConnection is the outbound half of a relay-side socket. TrySend never
// blocks; a full buffer is reported as an error. The adapter that created it
// closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its signaling endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	SID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
}
