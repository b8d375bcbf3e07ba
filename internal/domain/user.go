// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 64
	MaxRoomIDLen        = 64
)

var (
	ErrParticipantIDTooLong = errors.New("participant id too long")
	ErrParticipantIDEmpty   = errors.New("participant id empty")
)

// ParticipantID is opaque and stable for the lifetime of one signaling connection.
type ParticipantID string

// NewParticipantID is used when neither the caller nor the server supplied an id.
func NewParticipantID() ParticipantID {
	return ParticipantID("user_" + uuid.NewString())
}

func (id ParticipantID) Validate() error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	return nil
}

// Less is the glare tie-break order: the smaller id keeps its offer.
func (id ParticipantID) Less(other ParticipantID) bool {
	return id < other
}

type Participant struct {
	ID       ParticipantID `json:"id"`
	JoinedAt time.Time     `json:"joined_at"`
}

func NewParticipant(id ParticipantID) (*Participant, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return &Participant{ID: id, JoinedAt: time.Now()}, nil
}
