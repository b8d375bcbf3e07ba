package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var ErrBadFrame = errors.New("bad signaling frame")

// SessionDesc is the wire form of an offer or answer.
type SessionDesc struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Envelope is one JSON frame on the signaling socket.
type Envelope struct {
	Type         string                   `json:"type"`
	UserID       string                   `json:"userId"`
	RoomID       string                   `json:"roomId,omitempty"`
	TargetUserID string                   `json:"targetUserId,omitempty"`
	Offer        *SessionDesc             `json:"offer,omitempty"`
	Answer       *SessionDesc             `json:"answer,omitempty"`
	Candidate    *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Encode renders msg as a frame for room.
func Encode(msg core.SignalMessage, room domain.RoomID) (core.Frame, error) {
	env := Envelope{
		Type:         string(msg.Kind),
		UserID:       string(msg.From),
		RoomID:       string(room),
		TargetUserID: string(msg.To),
	}
	switch msg.Kind {
	case core.SignalOffer:
		env.Offer = &SessionDesc{Type: webrtc.SDPTypeOffer.String(), SDP: msg.SDP}
	case core.SignalAnswer:
		env.Answer = &SessionDesc{Type: webrtc.SDPTypeAnswer.String(), SDP: msg.SDP}
	case core.SignalCandidate:
		if msg.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate missing", ErrBadFrame)
		}
		env.Candidate = msg.Candidate
	case core.SignalUserJoined, core.SignalUserLeft:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadFrame, msg.Kind)
	}
	return json.Marshal(env)
}

// Decode parses a frame. Payload fields required by the type must be present.
func Decode(data []byte) (core.SignalMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return core.SignalMessage{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	msg := core.SignalMessage{
		Kind: core.SignalKind(env.Type),
		From: domain.ParticipantID(env.UserID),
		To:   domain.ParticipantID(env.TargetUserID),
	}
	switch msg.Kind {
	case core.SignalOffer:
		if env.Offer == nil {
			return msg, fmt.Errorf("%w: offer missing", ErrBadFrame)
		}
		msg.SDP = env.Offer.SDP
	case core.SignalAnswer:
		if env.Answer == nil {
			return msg, fmt.Errorf("%w: answer missing", ErrBadFrame)
		}
		msg.SDP = env.Answer.SDP
	case core.SignalCandidate:
		if env.Candidate == nil {
			return msg, fmt.Errorf("%w: candidate missing", ErrBadFrame)
		}
		msg.Candidate = env.Candidate
	case core.SignalUserJoined, core.SignalUserLeft:
	default:
		return msg, fmt.Errorf("%w: unknown type %q", ErrBadFrame, env.Type)
	}
	if msg.From == "" {
		return msg, fmt.Errorf("%w: userId missing", ErrBadFrame)
	}
	return msg, nil
}
