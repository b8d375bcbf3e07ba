package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/adapters/ice"
	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

type TokenIssuer interface {
	Issue(room domain.RoomID, user domain.ParticipantID) (string, time.Time, error)
}

type TurnSource interface {
	Generate(ctx context.Context) (ice.Credentials, error)
}

// StaticTurn serves a fixed set of servers.
type StaticTurn ice.Credentials

func (s StaticTurn) Generate(context.Context) (ice.Credentials, error) {
	return ice.Credentials(s), nil
}

type TokenRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

type handlers struct {
	board  *app.Switchboard
	tokens TokenIssuer
	turn   TurnSource
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(nethttp.StatusOK, HealthResponse{
		Status:   "ok",
		Rooms:    len(h.board.Rooms.List()),
		Sessions: h.board.Registry.Len(),
	})
}

func (h *handlers) rooms(c *gin.Context) {
	c.JSON(nethttp.StatusOK, h.board.Rooms.List())
}

func (h *handlers) token(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(nethttp.StatusNotFound, gin.H{"error": "tokens disabled"})
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomID == "" {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "missing or invalid roomId"})
		return
	}
	room := domain.RoomID(req.RoomID)
	if err := room.Validate(); err != nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := domain.ParticipantID(req.UserID)
	if user != "" {
		if err := user.Validate(); err != nil {
			c.JSON(nethttp.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	token, exp, err := h.tokens.Issue(room, user)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("issue token")
		c.JSON(nethttp.StatusInternalServerError, gin.H{"error": "issue token"})
		return
	}
	c.JSON(nethttp.StatusOK, TokenResponse{Token: token, ExpiresAt: exp.Unix()})
}

func (h *handlers) turnCredentials(c *gin.Context) {
	if h.turn == nil {
		c.JSON(nethttp.StatusNotFound, gin.H{"error": "turn disabled"})
		return
	}
	creds, err := h.turn.Generate(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("turn credentials")
		c.JSON(nethttp.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(nethttp.StatusOK, creds)
}
