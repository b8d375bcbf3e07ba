package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byUser map[domain.ParticipantID]SessionID
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		bySID:  make(map[SessionID]MemberSession),
		byUser: make(map[domain.ParticipantID]SessionID),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Member(id domain.ParticipantID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[id]
	if !ok {
		return nil, false
	}
	return r.bySID[sid], true
}

func (r *roomImpl) AddMember(ms MemberSession) (MemberSession, bool) {
	u := ms.Meta().Participant.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	var old MemberSession
	if prev, ok := r.byUser[u]; ok && prev != ms.SID() {
		old = r.bySID[prev]
		delete(r.bySID, prev)
	}
	r.bySID[ms.SID()] = ms
	r.byUser[u] = ms.SID()
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(ms.SID())).Str("user", string(u)).Bool("replaced", old != nil).Msg("member added")
	return old, old != nil
}

func (r *roomImpl) RemoveMember(sid SessionID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, false
	}
	u := ms.Meta().Participant.ID
	if r.byUser[u] == sid {
		delete(r.byUser, u)
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
	return ms, true
}

func (r *roomImpl) Broadcast(from domain.ParticipantID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, m := range r.bySID {
		if m.Meta().Participant.ID == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(to domain.ParticipantID, data Frame) (MemberSession, error) {
	r.mu.RLock()
	sid, ok := r.byUser[to]
	ms := r.bySID[sid]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoSuchMember
	}
	return ms, ms.Signal().TrySend(data)
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for _, ms := range r.bySID {
		p := ms.Meta().Participant
		out = append(out, MemberDTO{ID: p.ID, JoinedAt: p.JoinedAt.Unix()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
