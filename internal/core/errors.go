package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

// Acquire reasons.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrUnsupported       = errors.New("unsupported")
)

// Connect reasons.
var (
	ErrUnreachable       = errors.New("signaling server unreachable")
	ErrHandshakeRejected = errors.New("handshake rejected")
)

// Negotiation reasons.
var (
	ErrInvalidState   = errors.New("invalid signaling state")
	ErrRemoteRejected = errors.New("remote description rejected")
)

var (
	ErrTransportClosed = errors.New("signaling transport closed")
	ErrNotJoined       = errors.New("not joined")
	ErrNoLocalMedia    = errors.New("no local media")
	ErrClosed          = errors.New("orchestrator closed")
)

// AcquireError reports a failed capture. Reason is one of the acquire sentinels.
type AcquireError struct {
	Reason error
	Err    error
}

func (e *AcquireError) Error() string {
	if e.Err == nil {
		return "acquire media: " + e.Reason.Error()
	}
	return fmt.Sprintf("acquire media: %v: %v", e.Reason, e.Err)
}

func (e *AcquireError) Unwrap() []error { return []error{e.Reason, e.Err} }

// ConnectError reports a failed signaling connect. Reason is ErrUnreachable or ErrHandshakeRejected.
type ConnectError struct {
	Reason error
	Status int
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("connect signaling: %v (status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("connect signaling: %v: %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() []error { return []error{e.Reason, e.Err} }

// NegotiationError is fatal for one link only.
type NegotiationError struct {
	Remote domain.ParticipantID
	Op     string
	Reason error
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiate with %s: %s: %v: %v", e.Remote, e.Op, e.Reason, e.Err)
}

func (e *NegotiationError) Unwrap() []error { return []error{e.Reason, e.Err} }

// ProtocolAnomaly is a message dropped because it did not fit the link state.
// Anomalies are recorded, never returned.
type ProtocolAnomaly struct {
	Remote domain.ParticipantID
	Kind   SignalKind
	State  string
	Reason string
}

func (a ProtocolAnomaly) Error() string {
	if a.State == "" {
		return fmt.Sprintf("anomaly: %s from %s: %s", a.Kind, a.Remote, a.Reason)
	}
	return fmt.Sprintf("anomaly: %s from %s in %s: %s", a.Kind, a.Remote, a.State, a.Reason)
}

// JoinError wraps the first failure of a join. Nothing acquired before it is left running.
type JoinError struct {
	Stage string
	Err   error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join: %s: %v", e.Stage, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }
