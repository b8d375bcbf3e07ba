package core

import (
	"errors"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

var ErrNoSuchMember = errors.New("no such member")

// PublishResult reports delivery stats/backpressure to the switchboard.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.ParticipantID `json:"id"`
	JoinedAt int64                `json:"joined_at"`
}

// RoomService is the relay-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Member(id domain.ParticipantID) (MemberSession, bool)

	// AddMember stores ms under its participant id and returns the session it displaced, if any.
	AddMember(ms MemberSession) (MemberSession, bool)
	// RemoveMember removes sid only while it is still the current session of its participant.
	RemoveMember(sid SessionID) (MemberSession, bool)
	Broadcast(from domain.ParticipantID, data Frame) PublishResult
	SendTo(to domain.ParticipantID, data Frame) (MemberSession, error)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	// StopRoom drops the room if it has no members left.
	StopRoom(id domain.RoomID) bool
}
