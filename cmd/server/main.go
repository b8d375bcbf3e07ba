package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/adapters/auth"
	router "github.com/dkeye/VoiceMesh/internal/adapters/http"
	"github.com/dkeye/VoiceMesh/internal/adapters/ice"
	"github.com/dkeye/VoiceMesh/internal/adapters/presence"
	wssignal "github.com/dkeye/VoiceMesh/internal/adapters/signal"
	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	board := &app.Switchboard{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{Action: app.ParseBackpressureAction(cfg.Backpressure)},
	}
	if cfg.Redis.Addr != "" {
		p, err := presence.Connect(ctx, presence.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			log.Error().Err(err).Msg("presence disabled")
		} else {
			board.Presence = p
			defer p.Close()
		}
	}

	limiter := wssignal.NewRoomRateLimiter(cfg.RateLimit.Joins, cfg.RateLimit.Interval)
	deps := router.Deps{Board: board}
	var verifier wssignal.TokenVerifier
	if cfg.JWT.Secret != "" {
		tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
		verifier = tokens
		deps.Tokens = tokens
	}
	switch {
	case cfg.Turn.Endpoint != "":
		deps.Turn = ice.TurnKeys{Endpoint: cfg.Turn.Endpoint, APIToken: cfg.Turn.APIToken, TTL: cfg.Turn.TTL}
	case len(cfg.Turn.URLs) > 0:
		var creds ice.Credentials
		creds.IceServers.URLs = cfg.Turn.URLs
		creds.IceServers.Username = cfg.Turn.Username
		creds.IceServers.Credential = cfg.Turn.Credential
		deps.Turn = router.StaticTurn(creds)
	}
	deps.Signal = wssignal.NewSignalWSController(board, limiter, verifier, wssignal.ServerConfig{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	go func() {
		ticker := time.NewTicker(cfg.RateLimit.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					log.Debug().Int("users", n).Msg("rate limiter swept")
				}
			}
		}
	}()

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("VoiceMesh server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	board.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
