package domain

import "sync/atomic"

// Member represents a participant's presence in a room on the relay server.
// No transport or lifecycle logic here.
type Member struct {
	Participant *Participant
	Slow        atomic.Bool
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(p *Participant) *Member {
	return &Member{Participant: p}
}
