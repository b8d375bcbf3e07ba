package mesh

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/core"
)

type nopConn struct {
	closed int
}

func (c *nopConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}, nil
}

func (c *nopConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}, nil
}

func (c *nopConn) SetRemoteDescription(webrtc.SessionDescription) error { return nil }
func (c *nopConn) Rollback() error                                      { return nil }
func (c *nopConn) AddICECandidate(webrtc.ICECandidateInit) error        { return nil }
func (c *nopConn) AddTrack(webrtc.TrackLocal) error                     { return nil }
func (c *nopConn) RemoveTrack(webrtc.TrackLocal) error                  { return nil }
func (c *nopConn) ReplaceTrack(core.TrackKind, webrtc.TrackLocal) error { return nil }
func (c *nopConn) OnICECandidate(func(webrtc.ICECandidateInit))         {}
func (c *nopConn) OnTrack(func(core.RemoteTrack))                       {}
func (c *nopConn) OnFailed(func(error))                                 {}
func (c *nopConn) Close() error                                         { c.closed++; return nil }
