package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis mirrors room membership into one set per room.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect opens the client and pings it once.
func Connect(ctx context.Context, cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	log.Info().Str("module", "presence").Str("addr", cfg.Addr).Msg("redis connected")
	return &Redis{client: client, ttl: ttl}, nil
}

func peersKey(room domain.RoomID) string {
	return "room:" + string(room) + ":peers"
}

func (r *Redis) Joined(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	key := peersKey(room)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, string(id))
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

func (r *Redis) Left(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	return r.client.SRem(ctx, peersKey(room), string(id)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
