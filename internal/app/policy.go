package app

import "github.com/dkeye/VoiceMesh/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// ParseBackpressureAction maps a config value to an action. Unknown values kick.
func ParseBackpressureAction(s string) BackpressureAction {
	switch s {
	case "none":
		return NoAction
	case "mark":
		return MarkSlow
	case "drop":
		return DropFrame
	}
	return KickMember
}

type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy applies the same action to every slow member. A member
// already marked slow is kicked on its next overflow.
type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	if p.Action == MarkSlow && member.Meta().Slow.Load() {
		return KickMember
	}
	return p.Action
}
