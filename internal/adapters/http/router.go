package http

import (
	"context"
	nethttp "net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/adapters/signal"
	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/config"
)

// Deps are the services behind the routes. Tokens and Turn may be nil.
type Deps struct {
	Signal *signal.SignalWSController
	Board  *app.Switchboard
	Tokens TokenIssuer
	Turn   TurnSource
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) nethttp.Handler {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceMeshSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	h := &handlers{board: deps.Board, tokens: deps.Tokens, turn: deps.Turn}
	r.GET("/health", h.health)
	r.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("room", c.Query("roomId")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/rooms", h.rooms)
	api.POST("/token", h.token)
	api.GET("/turn-credentials", h.turnCredentials)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Strs("cors", cfg.CORSOrigins).Msg("router setup")

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{nethttp.MethodGet, nethttp.MethodPost, nethttp.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}
