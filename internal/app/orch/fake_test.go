package orch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/app/mesh"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

// hub is an in-memory single-room relay with the server's join semantics.
type hub struct {
	mu      sync.Mutex
	members map[domain.ParticipantID]*hubTransport
}

func newHub() *hub {
	return &hub{members: make(map[domain.ParticipantID]*hubTransport)}
}

func (h *hub) transport() *hubTransport {
	return &hubTransport{hub: h, in: make(chan core.SignalEvent, 4096)}
}

type hubTransport struct {
	hub  *hub
	self domain.ParticipantID

	mu     sync.Mutex
	in     chan core.SignalEvent
	closed bool
	sent   []core.SignalMessage
}

func (t *hubTransport) Connect(_ context.Context, _ domain.RoomID, self domain.ParticipantID) error {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	t.self = self
	for id, m := range t.hub.members {
		m.deliver(core.SignalMessage{Kind: core.SignalUserJoined, From: self})
		t.deliver(core.SignalMessage{Kind: core.SignalUserJoined, From: id})
	}
	t.hub.members[self] = t
	return nil
}

func (t *hubTransport) Send(msg core.SignalMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return core.ErrTransportClosed
	}
	t.sent = append(t.sent, msg)
	t.mu.Unlock()

	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	msg.From = t.self
	if msg.To == "" {
		for id, m := range t.hub.members {
			if id != t.self {
				m.deliver(msg)
			}
		}
		return nil
	}
	if m, ok := t.hub.members[msg.To]; ok {
		m.deliver(msg)
	}
	return nil
}

func (t *hubTransport) Inbound() <-chan core.SignalEvent { return t.in }

func (t *hubTransport) Close() {
	t.hub.mu.Lock()
	if t.hub.members[t.self] == t {
		delete(t.hub.members, t.self)
		for _, m := range t.hub.members {
			m.deliver(core.SignalMessage{Kind: core.SignalUserLeft, From: t.self})
		}
	}
	t.hub.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.in)
	}
}

func (t *hubTransport) deliver(msg core.SignalMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.in <- core.SignalEvent{Msg: msg}
	}
}

// fail ends the inbound sequence the way a dropped socket does.
func (t *hubTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.in <- core.SignalEvent{Err: err}
	}
}

func (t *hubTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *hubTransport) sentOf(kind core.SignalKind, to domain.ParticipantID) []core.SignalMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []core.SignalMessage
	for _, m := range t.sent {
		if m.Kind == kind && m.To == to {
			out = append(out, m)
		}
	}
	return out
}

var errNoRemoteDescription = errors.New("remote description not set")

type fakeConn struct {
	owner  domain.ParticipantID
	remote domain.ParticipantID

	mu         sync.Mutex
	offers     int
	answers    int
	rollbacks  int
	remoteSDP  []webrtc.SessionDescription
	applied    []string
	tracks     []webrtc.TrackLocal
	closed     bool
	servers    []webrtc.ICEServer
	emit       bool
	failRemote error
	onICE      func(webrtc.ICECandidateInit)
	onTrack    func(core.RemoteTrack)
	onFailed   func(error)
	incoming   []*remoteTrack
}

func (c *fakeConn) local(kind webrtc.SDPType, n int) webrtc.SessionDescription {
	sd := webrtc.SessionDescription{Type: kind, SDP: fmt.Sprintf("%s:%s:%d", kind, c.owner, n)}
	if c.emit && c.onICE != nil {
		c.onICE(webrtc.ICECandidateInit{Candidate: fmt.Sprintf("cand:%s:%s:%d", c.owner, kind, n)})
	}
	return sd
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	return c.local(webrtc.SDPTypeOffer, c.offers), nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers++
	return c.local(webrtc.SDPTypeAnswer, c.answers), nil
}

func (c *fakeConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRemote != nil {
		return c.failRemote
	}
	c.remoteSDP = append(c.remoteSDP, sd)
	return nil
}

func (c *fakeConn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.remoteSDP) == 0 {
		return errNoRemoteDescription
	}
	c.applied = append(c.applied, ci.Candidate)
	return nil
}

func (c *fakeConn) AddTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *fakeConn) RemoveTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, have := range c.tracks {
		if have == t {
			c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
			return nil
		}
	}
	return errors.New("track not attached")
}

func (c *fakeConn) ReplaceTrack(kind core.TrackKind, t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, have := range c.tracks {
		if have.Kind() == kind {
			c.tracks[i] = t
			return nil
		}
	}
	return errors.New("no sender")
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *fakeConn) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *fakeConn) OnFailed(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailed = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.incoming {
		t.end()
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) appliedCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.applied...)
}

func (c *fakeConn) counts() (offers, answers, rollbacks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers, c.answers, c.rollbacks
}

func (c *fakeConn) track(kind core.TrackKind) webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func (c *fakeConn) trackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

func (c *fakeConn) remoteTrack(t *remoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.incoming = append(c.incoming, t)
	c.mu.Unlock()
	fn(t)
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	fn := c.onFailed
	c.mu.Unlock()
	fn(err)
}

type connFactory struct {
	owner domain.ParticipantID
	emit  bool

	mu         sync.Mutex
	conns      map[domain.ParticipantID][]*fakeConn
	failRemote map[domain.ParticipantID]error
}

func newConnFactory(owner domain.ParticipantID, emit bool) *connFactory {
	return &connFactory{
		owner:      owner,
		emit:       emit,
		conns:      make(map[domain.ParticipantID][]*fakeConn),
		failRemote: make(map[domain.ParticipantID]error),
	}
}

func (f *connFactory) NewConnection(remote domain.ParticipantID, servers []webrtc.ICEServer) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{owner: f.owner, remote: remote, servers: servers, emit: f.emit, failRemote: f.failRemote[remote]}
	f.conns[remote] = append(f.conns[remote], c)
	return c, nil
}

func (f *connFactory) latest(remote domain.ParticipantID) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.conns[remote]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

func (f *connFactory) count(remote domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[remote])
}

type fakeHandle struct {
	id     string
	tracks []webrtc.TrackLocal
	ended  chan struct{}
	once   sync.Once
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Tracks() []webrtc.TrackLocal { return append([]webrtc.TrackLocal(nil), h.tracks...) }

func (h *fakeHandle) Ended() <-chan struct{} { return h.ended }

func (h *fakeHandle) Track(kind core.TrackKind) (webrtc.TrackLocal, bool) {
	for _, t := range h.tracks {
		if t.Kind() == kind {
			return t, true
		}
	}
	return nil, false
}

func (h *fakeHandle) end() { h.once.Do(func() { close(h.ended) }) }

func newTrack(t *testing.T, kind core.TrackKind, id string) webrtc.TrackLocal {
	t.Helper()
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == core.KindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, id, "stream-"+id)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	return track
}

func newHandle(t *testing.T, id string, kinds ...core.TrackKind) *fakeHandle {
	t.Helper()
	h := &fakeHandle{id: id, ended: make(chan struct{})}
	for _, k := range kinds {
		h.tracks = append(h.tracks, newTrack(t, k, id+"-"+k.String()))
	}
	return h
}

type fakeMedia struct {
	local  *fakeHandle
	screen *fakeHandle

	mu       sync.Mutex
	enabled  map[core.TrackKind]bool
	sets     int
	released map[string]int
}

func newFakeMedia(local, screen *fakeHandle) *fakeMedia {
	return &fakeMedia{
		local:    local,
		screen:   screen,
		enabled:  map[core.TrackKind]bool{core.KindAudio: true, core.KindVideo: true},
		released: make(map[string]int),
	}
}

func (m *fakeMedia) AcquireLocal(context.Context, core.Constraints) (core.MediaHandle, error) {
	return m.local, nil
}

func (m *fakeMedia) AcquireScreenShare(context.Context) (core.MediaHandle, error) {
	if m.screen == nil {
		return nil, &core.AcquireError{Reason: core.ErrUnsupported}
	}
	return m.screen, nil
}

func (m *fakeMedia) SetTrackEnabled(kind core.TrackKind, enabled bool) error {
	if _, ok := m.local.Track(kind); !ok {
		return core.ErrNoLocalMedia
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled[kind] = enabled
	m.sets++
	return nil
}

func (m *fakeMedia) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func (m *fakeMedia) TrackEnabled(kind core.TrackKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

func (m *fakeMedia) Release(h core.MediaHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released[h.ID()]++
}

func (m *fakeMedia) releasedCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[id]
}

type failingICE struct{}

func (failingICE) ICEServers(context.Context) ([]webrtc.ICEServer, error) {
	return nil, errors.New("credentials endpoint down")
}

// peer is one orchestrator wired to fakes.
type peer struct {
	id    domain.ParticipantID
	o     *Orchestrator
	media *fakeMedia
	conns *connFactory

	mu sync.Mutex
	tr *hubTransport
}

type peerOption func(*Deps, *Config)

func withPolicy(p InitiatorPolicy) peerOption {
	return func(_ *Deps, c *Config) { c.Initiator = p }
}

func withICE(src core.ICEServerSource, static []webrtc.ICEServer) peerOption {
	return func(d *Deps, c *Config) {
		d.ICE = src
		c.StaticICE = static
	}
}

func newPeer(t *testing.T, h *hub, id domain.ParticipantID, media *fakeMedia, emit bool, opts ...peerOption) *peer {
	t.Helper()
	p := &peer{id: id, media: media, conns: newConnFactory(id, emit)}
	deps := Deps{
		Media: media,
		Transports: func() core.SignalTransport {
			tr := h.transport()
			p.mu.Lock()
			p.tr = tr
			p.mu.Unlock()
			return tr
		},
		Conns: p.conns,
	}
	cfg := Config{Constraints: core.Constraints{Audio: true, Video: true}}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	p.o = New(deps, cfg)
	t.Cleanup(p.o.Close)
	return p
}

func (p *peer) join(t *testing.T) {
	t.Helper()
	if _, err := p.o.Join(context.Background(), "r1", p.id); err != nil {
		t.Fatalf("%s join: %v", p.id, err)
	}
}

func (p *peer) transport() *hubTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tr
}

// push injects an inbound message as if the relay had sent it.
func (p *peer) push(msg core.SignalMessage) {
	p.transport().deliver(msg)
}

func (p *peer) link(remote domain.ParticipantID) (LinkInfo, bool) {
	for _, l := range p.o.Links() {
		if l.Remote == remote {
			return l, true
		}
	}
	return LinkInfo{}, false
}

func (p *peer) remotes() []domain.ParticipantID {
	var out []domain.ParticipantID
	for _, l := range p.o.Links() {
		out = append(out, l.Remote)
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func stateIs(p *peer, remote domain.ParticipantID, want mesh.State) func() bool {
	return func() bool {
		l, ok := p.link(remote)
		return ok && l.State == want
	}
}

func (c *fakeConn) remoteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.remoteSDP)
}

func (c *fakeConn) iceServers() []webrtc.ICEServer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.servers
}

// remoteTrack delivers no packets and reads EOF once ended.
type remoteTrack struct {
	id, stream string
	kind       core.TrackKind

	ended chan struct{}
	once  sync.Once
}

func newRemoteTrack(id, stream string, kind core.TrackKind) *remoteTrack {
	return &remoteTrack{id: id, stream: stream, kind: kind, ended: make(chan struct{})}
}

func (r *remoteTrack) ID() string                { return r.id }
func (r *remoteTrack) StreamID() string          { return r.stream }
func (r *remoteTrack) Kind() webrtc.RTPCodecType { return r.kind }

func (r *remoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	<-r.ended
	return nil, nil, io.EOF
}

func (r *remoteTrack) end() { r.once.Do(func() { close(r.ended) }) }

type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func record[T any](topic *events.Topic[T]) *recorder[T] {
	r := &recorder[T]{}
	topic.Subscribe(func(v T) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, v)
	})
	return r
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}
