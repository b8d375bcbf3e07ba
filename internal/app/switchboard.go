package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var ErrNoSession = errors.New("no session")

// Presence mirrors room membership to an external store. Errors are logged only.
type Presence interface {
	Joined(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	Left(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
}

// Switchboard is the relay server's view of rooms: who is where and who gets
// which frame. It never parses frames.
type Switchboard struct {
	Registry *Registry
	Rooms    core.RoomManager
	Policy   Policy
	Presence Presence
}

// Join puts sid into room and returns the ids already there. A previous
// connection of the same participant is displaced and canceled.
func (sb *Switchboard) Join(sid core.SessionID, roomID domain.RoomID) ([]domain.ParticipantID, error) {
	session, ok := sb.Registry.GetSession(sid)
	if !ok {
		return nil, ErrNoSession
	}
	if from, _, ok := sb.Registry.RoomOf(sid); ok {
		sb.Leave(sid)
		log.Info().Str("module", "app.switchboard").Str("sid", string(sid)).Str("from_room", string(from)).Msg("moved out of room")
	}

	room := sb.Rooms.GetOrCreate(roomID)
	self := session.Meta().Participant.ID
	if old, replaced := room.AddMember(session); replaced {
		sb.Registry.RemoveRoom(old.SID())
		sb.Registry.Cancel(old.SID())
		log.Info().Str("module", "app.switchboard").Str("user", string(self)).Str("old_sid", string(old.SID())).Msg("duplicate connection replaced")
	}
	sb.Registry.UpdateRoom(sid, roomID)
	sb.mirror(func(ctx context.Context) error { return sb.Presence.Joined(ctx, roomID, self) })

	peers := make([]domain.ParticipantID, 0, room.MemberCount())
	for _, m := range room.MembersSnapshot() {
		if m.ID != self {
			peers = append(peers, m.ID)
		}
	}
	log.Info().Str("module", "app.switchboard").Str("sid", string(sid)).Str("room", string(roomID)).Int("peers", len(peers)).Msg("added to room")
	return peers, nil
}

// Leave takes sid out of its room. It reports the room and participant, and
// whether sid was still the participant's current connection.
func (sb *Switchboard) Leave(sid core.SessionID) (domain.RoomID, domain.ParticipantID, bool) {
	roomID, _, ok := sb.Registry.RoomOf(sid)
	if !ok {
		return "", "", false
	}
	sb.Registry.RemoveRoom(sid)
	room, ok := sb.Rooms.Get(roomID)
	if !ok {
		return roomID, "", false
	}
	ms, removed := room.RemoveMember(sid)
	if !removed {
		return roomID, "", false
	}
	id := ms.Meta().Participant.ID
	if _, still := room.Member(id); !still {
		sb.mirror(func(ctx context.Context) error { return sb.Presence.Left(ctx, roomID, id) })
	}
	if sb.Rooms.StopRoom(roomID) {
		log.Info().Str("module", "app.switchboard").Str("room", string(roomID)).Msg("room emptied")
	}
	return roomID, id, true
}

// OnDisconnect is Leave plus forgetting the connection.
func (sb *Switchboard) OnDisconnect(sid core.SessionID) (domain.RoomID, domain.ParticipantID, bool) {
	roomID, id, ok := sb.Leave(sid)
	sb.Registry.Unbind(sid)
	return roomID, id, ok
}

// Broadcast sends data to everyone in roomID except from.
func (sb *Switchboard) Broadcast(roomID domain.RoomID, from domain.ParticipantID, data core.Frame) core.PublishResult {
	room, ok := sb.Rooms.Get(roomID)
	if !ok {
		return core.PublishResult{}
	}
	res := room.Broadcast(from, data)
	for _, slow := range res.Dropped {
		sb.onBackpressure(room, slow)
	}
	return res
}

// Forward delivers data from sid to one member of the same room.
func (sb *Switchboard) Forward(sid core.SessionID, to domain.ParticipantID, data core.Frame) error {
	roomID, _, ok := sb.Registry.RoomOf(sid)
	if !ok {
		return ErrNoSession
	}
	room, ok := sb.Rooms.Get(roomID)
	if !ok {
		return ErrNoSession
	}
	target, err := room.SendTo(to, data)
	if err != nil && target != nil {
		sb.onBackpressure(room, target)
	}
	return err
}

func (sb *Switchboard) onBackpressure(room core.RoomService, slow core.MemberSession) {
	if sb.Policy == nil {
		return
	}
	switch sb.Policy.OnBackPressure(room, slow) {
	case KickMember:
		log.Warn().Str("module", "app.switchboard").Str("sid", string(slow.SID())).Msg("kicking slow member")
		sb.Kick(slow.SID())
	case MarkSlow:
		slow.Meta().Slow.Store(true)
	case DropFrame, NoAction:
	}
}

// Kick cancels the connection of sid; its disconnect does the cleanup.
func (sb *Switchboard) Kick(sid core.SessionID) {
	sb.Registry.Cancel(sid)
}

// EvictRoom kicks every member of the room.
func (sb *Switchboard) EvictRoom(id domain.RoomID) {
	for _, snap := range sb.Registry.MembersOfRoom(id) {
		sb.Kick(snap.SID)
	}
}

// Shutdown evicts every room.
func (sb *Switchboard) Shutdown() {
	for _, info := range sb.Rooms.List() {
		sb.EvictRoom(info.ID)
	}
}

func (sb *Switchboard) mirror(fn func(ctx context.Context) error) {
	if sb.Presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("module", "app.switchboard").Msg("presence mirror")
	}
}
