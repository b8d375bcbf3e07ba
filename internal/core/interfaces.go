package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

// SignalKind is the tag of a SignalMessage. Values match the wire "type" field.
type SignalKind string

const (
	SignalUserJoined SignalKind = "user-joined"
	SignalUserLeft   SignalKind = "user-left"
	SignalOffer      SignalKind = "offer"
	SignalAnswer     SignalKind = "answer"
	SignalCandidate  SignalKind = "ice-candidate"
)

// SignalMessage is one typed signaling event. An empty To means broadcast.
type SignalMessage struct {
	Kind      SignalKind
	From      domain.ParticipantID
	To        domain.ParticipantID
	SDP       string
	Candidate *webrtc.ICECandidateInit
}

// SignalEvent is an element of the inbound sequence. A non-nil Err is terminal.
type SignalEvent struct {
	Msg SignalMessage
	Err error
}

// SignalTransport is the client side of the signaling channel.
// A transport is single-use: once closed it cannot be connected again.
type SignalTransport interface {
	// Connect opens the channel for self in room. Failures are *ConnectError.
	Connect(ctx context.Context, room domain.RoomID, self domain.ParticipantID) error
	Send(msg SignalMessage) error
	// Inbound yields messages in server order, then at most one terminal event,
	// then is closed.
	Inbound() <-chan SignalEvent
	// Close is idempotent; nothing is delivered on Inbound after it returns.
	Close()
}

//go:generate mockgen -source=interfaces.go -destination=mock/signal_transport.go -package=mock

// TransportFactory builds a fresh transport for each join.
type TransportFactory func() SignalTransport
