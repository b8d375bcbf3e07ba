package core

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind = webrtc.RTPCodecType

const (
	KindAudio = webrtc.RTPCodecTypeAudio
	KindVideo = webrtc.RTPCodecTypeVideo
)

// Constraints selects which local tracks AcquireLocal captures.
type Constraints struct {
	Audio bool
	Video bool
}

// MediaHandle is one acquired capture and the local tracks it feeds.
type MediaHandle interface {
	ID() string
	Tracks() []webrtc.TrackLocal
	Track(kind TrackKind) (webrtc.TrackLocal, bool)
	// Ended is closed when the capture stops on its own or is released.
	Ended() <-chan struct{}
}

//go:generate mockgen -source=media_iface.go -destination=mock/media_source.go -package=mock -exclude_interfaces=MediaHandle,RemoteTrack,MediaConnection,ConnectionFactory,ICEServerSource

// MediaSource owns local capture. Only the orchestrator mutates it.
type MediaSource interface {
	AcquireLocal(ctx context.Context, c Constraints) (MediaHandle, error)
	AcquireScreenShare(ctx context.Context) (MediaHandle, error)
	// SetTrackEnabled flips the enabled flag of the local camera/mic track in
	// place. The capture keeps running and the track stays attached.
	SetTrackEnabled(kind TrackKind, enabled bool) error
	TrackEnabled(kind TrackKind) bool
	Release(h MediaHandle)
}

// RemoteTrack is the receive side of one remote media track.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// MediaConnection is the transport behind one peer link.
type MediaConnection interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a pending local offer and returns to stable.
	Rollback() error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	AddTrack(track webrtc.TrackLocal) error
	RemoveTrack(track webrtc.TrackLocal) error
	// ReplaceTrack swaps the track on the primary sender of kind without renegotiation.
	ReplaceTrack(kind TrackKind, track webrtc.TrackLocal) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// OnFailed is invoked once when connectivity fails for good.
	OnFailed(func(error))

	Close() error
}

// ConnectionFactory builds a MediaConnection for one remote participant.
type ConnectionFactory interface {
	NewConnection(remote domain.ParticipantID, iceServers []webrtc.ICEServer) (MediaConnection, error)
}

// ICEServerSource supplies ICE servers once per join.
type ICEServerSource interface {
	ICEServers(ctx context.Context) ([]webrtc.ICEServer, error)
}
