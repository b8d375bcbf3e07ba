package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var ErrConnClosed = errors.New("connection closed")

// TokenVerifier admits a participant into a room.
type TokenVerifier interface {
	Verify(token string, room domain.RoomID, user domain.ParticipantID) error
}

// ServerConfig tunes relay-side sockets.
type ServerConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (c *ServerConfig) withDefaults() {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32768
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
}

// pongWait leaves the peer one missed ping of slack.
func (c *ServerConfig) pongWait() time.Duration { return c.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Board   *app.Switchboard
	Limiter *RoomRateLimiter
	Tokens  TokenVerifier
	cfg     ServerConfig
}

func NewSignalWSController(board *app.Switchboard, limiter *RoomRateLimiter, tokens TokenVerifier, cfg ServerConfig) *SignalWSController {
	cfg.withDefaults()
	return &SignalWSController{
		Board:   board,
		Limiter: limiter,
		Tokens:  tokens,
		cfg:     cfg,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal admits one participant: it validates the query, upgrades,
// announces the newcomer and starts the pumps.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	room := domain.RoomID(c.Query("roomId"))
	if err := room.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := resolveParticipant(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ctl.Tokens != nil {
		if err := ctl.Tokens.Verify(c.Query("token"), room, id); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("room", string(room)).Str("user", string(id)).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many joins"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	sid := core.SessionID(uuid.NewString())
	participant, err := domain.NewParticipant(id)
	if err != nil {
		conn.Close()
		return
	}
	sess := core.NewMemberSession(sid, domain.NewMember(participant), conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Board.Registry.BindSignal(sess, cancel)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", string(id)).Str("room", string(room)).Msg("new WS connection")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go ctl.writePump(ctx, conn)
	ctl.handleJoin(sid, room, id)
	go ctl.readPump(ctx, sid, id, conn)
}
