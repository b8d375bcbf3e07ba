package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// ClientConfig tunes the participant side of the signaling socket.
type ClientConfig struct {
	URL          string
	Token        string
	WriteWait    time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
	ReadLimit    int64
	OutboundSize int
}

func (c *ClientConfig) withDefaults() {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 * 1024
	}
	if c.OutboundSize <= 0 {
		c.OutboundSize = 64
	}
}

// Client is a single-use core.SignalTransport over a WebSocket.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	room      domain.RoomID
	started   bool
	closeOnce sync.Once

	inbound  chan core.SignalEvent
	outgoing chan core.Frame
	done     chan struct{}
	stopped  chan struct{}
	pumps    conc.WaitGroup
}

func NewClient(cfg ClientConfig) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		dialer:   websocket.DefaultDialer,
		inbound:  make(chan core.SignalEvent),
		outgoing: make(chan core.Frame, cfg.OutboundSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Factory returns a core.TransportFactory producing clients with cfg.
func Factory(cfg ClientConfig) core.TransportFactory {
	return func() core.SignalTransport { return NewClient(cfg) }
}

func (c *Client) endpoint(room domain.RoomID, self domain.ParticipantID) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid signal url: %w", err)
	}
	q := u.Query()
	q.Set("userId", string(self))
	q.Set("roomId", string(room))
	if c.cfg.Token != "" {
		q.Set("token", c.cfg.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Connect(ctx context.Context, room domain.RoomID, self domain.ParticipantID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return &core.ConnectError{Reason: core.ErrUnreachable, Err: core.ErrTransportClosed}
	default:
	}
	if c.started {
		return &core.ConnectError{Reason: core.ErrUnreachable, Err: fmt.Errorf("%w: already connected", core.ErrInvalidState)}
	}

	target, err := c.endpoint(room, self)
	if err != nil {
		return &core.ConnectError{Reason: core.ErrUnreachable, Err: err}
	}
	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return &core.ConnectError{Reason: core.ErrHandshakeRejected, Status: resp.StatusCode, Err: err}
		}
		return &core.ConnectError{Reason: core.ErrUnreachable, Err: err}
	}

	c.conn = conn
	c.room = room
	c.started = true
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	c.pumps.Go(c.readPump)
	c.pumps.Go(c.writePump)

	log.Info().Str("module", "signal.client").Str("room", string(room)).Str("self", string(self)).Msg("connected")
	return nil
}

func (c *Client) Inbound() <-chan core.SignalEvent { return c.inbound }

func (c *Client) Send(msg core.SignalMessage) error {
	c.mu.Lock()
	room, started := c.room, c.started
	c.mu.Unlock()
	if !started {
		return core.ErrTransportClosed
	}
	frame, err := Encode(msg, room)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return core.ErrTransportClosed
	case <-c.stopped:
		return core.ErrTransportClosed
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close is idempotent. Once it returns nothing more arrives on Inbound.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		conn, started := c.conn, c.started
		c.mu.Unlock()
		if !started {
			close(c.inbound)
			return
		}
		_ = conn.Close()
		c.pumps.Wait()
		log.Info().Str("module", "signal.client").Str("room", string(c.room)).Msg("closed")
	})
}

// readPump decodes frames in order. A read error ends the sequence with one
// terminal event unless Close got there first.
func (c *Client) readPump() {
	defer close(c.inbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.emit(core.SignalEvent{Err: fmt.Errorf("%w: %v", core.ErrTransportClosed, err)})
			return
		}
		msg, err := Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.client").Msg("dropping frame")
			continue
		}
		if !c.emit(core.SignalEvent{Msg: msg}) {
			return
		}
	}
}

func (c *Client) emit(ev core.SignalEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbound <- ev:
		return true
	case <-c.done:
		return false
	}
}

// writePump owns every write on the socket, pings included.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		close(c.stopped)
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Str("module", "signal.client").Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal.client").Msg("ping failed")
				return
			}
		}
	}
}
