package mesh

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var ErrRetired = errors.New("participant retired")

// Connector builds the media connection for a new link.
type Connector func(remote domain.ParticipantID) (core.MediaConnection, error)

// Table is the only place links are created and destroyed. A removed id is
// retired until Forget is called for it.
type Table struct {
	mu      sync.RWMutex
	links   map[domain.ParticipantID]*Link
	retired map[domain.ParticipantID]struct{}
	connect Connector
}

func NewTable(connect Connector) *Table {
	return &Table{
		links:   make(map[domain.ParticipantID]*Link),
		retired: make(map[domain.ParticipantID]struct{}),
		connect: connect,
	}
}

// GetOrCreate returns the link for remote, creating it in Idle when absent.
func (t *Table) GetOrCreate(remote domain.ParticipantID) (*Link, bool, error) {
	t.mu.RLock()
	l, ok := t.links[remote]
	t.mu.RUnlock()
	if ok {
		return l, false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok = t.links[remote]; ok {
		return l, false, nil
	}
	if _, ok := t.retired[remote]; ok {
		return nil, false, ErrRetired
	}
	conn, err := t.connect(remote)
	if err != nil {
		return nil, false, err
	}
	l = newLink(remote, conn)
	t.links[remote] = l
	log.Debug().Str("module", "mesh.table").Str("remote", string(remote)).Int("links", len(t.links)).Msg("link created")
	return l, true, nil
}

func (t *Table) Get(remote domain.ParticipantID) (*Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.links[remote]
	return l, ok
}

// Remove closes and evicts the link and retires remote. It is safe for ids
// that never had a link.
func (t *Table) Remove(remote domain.ParticipantID) bool {
	t.mu.Lock()
	l, ok := t.links[remote]
	delete(t.links, remote)
	t.retired[remote] = struct{}{}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if err := l.close(); err != nil {
		log.Warn().Err(err).Str("module", "mesh.table").Str("remote", string(remote)).Msg("close link")
	}
	log.Debug().Str("module", "mesh.table").Str("remote", string(remote)).Msg("link removed")
	return true
}

// Retired reports whether messages from remote are to be ignored.
func (t *Table) Retired(remote domain.ParticipantID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.retired[remote]
	return ok
}

// Forget lifts the retirement of remote.
func (t *Table) Forget(remote domain.ParticipantID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.retired, remote)
}

// ForEach visits links in ascending id order over a snapshot, so fn may
// remove links.
func (t *Table) ForEach(fn func(*Link)) {
	for _, l := range t.snapshot() {
		fn(l)
	}
}

func (t *Table) snapshot() []*Link {
	t.mu.RLock()
	out := make([]*Link, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Remote < out[j].Remote })
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.links)
}

// Clear closes every link. Retirements are dropped with them.
func (t *Table) Clear() {
	t.mu.Lock()
	links := t.links
	t.links = make(map[domain.ParticipantID]*Link)
	t.retired = make(map[domain.ParticipantID]struct{})
	t.mu.Unlock()
	for remote, l := range links {
		if err := l.close(); err != nil {
			log.Warn().Err(err).Str("module", "mesh.table").Str("remote", string(remote)).Msg("close link")
		}
	}
}
