package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "VOICEMESH"

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	Joins    int           `mapstructure:"joins"`
	Interval time.Duration `mapstructure:"interval"`
}

// TurnConfig either points at a TURN key service or lists static servers.
type TurnConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIToken   string        `mapstructure:"api_token"`
	TTL        time.Duration `mapstructure:"ttl"`
	URLs       []string      `mapstructure:"urls"`
	Username   string        `mapstructure:"username"`
	Credential string        `mapstructure:"credential"`
}

type Config struct {
	Mode         string          `mapstructure:"mode"`
	Port         int             `mapstructure:"port"`
	StaticPath   string          `mapstructure:"static_path"`
	LogLevel     string          `mapstructure:"log_level"`
	ReadLimit    int64           `mapstructure:"read_limit"`
	PingPeriod   time.Duration   `mapstructure:"ping_period"`
	WriteWait    time.Duration   `mapstructure:"write_wait"`
	SendBuffer   int             `mapstructure:"send_buffer"`
	Secret       string          `mapstructure:"secret"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	Backpressure string          `mapstructure:"backpressure"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	JWT          JWTConfig       `mapstructure:"jwt"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Turn         TurnConfig      `mapstructure:"turn"`
}

type PeerConfig struct {
	SignalURL    string        `mapstructure:"signal"`
	Room         string        `mapstructure:"room"`
	User         string        `mapstructure:"user"`
	Token        string        `mapstructure:"token"`
	ICEURL       string        `mapstructure:"ice_url"`
	STUN         []string      `mapstructure:"stun"`
	Initiator    string        `mapstructure:"initiator"`
	Audio        string        `mapstructure:"audio"`
	Video        string        `mapstructure:"video"`
	Screen       string        `mapstructure:"screen"`
	ShareMode    string        `mapstructure:"share_mode"`
	Record       string        `mapstructure:"record"`
	LogLevel     string        `mapstructure:"log_level"`
	AnomalyLimit int           `mapstructure:"anomaly_limit"`
	PLIInterval  time.Duration `mapstructure:"pli_interval"`
}

func newViper(name string) (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", name, env)
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, fileName
}

func read(v *viper.Viper, fileName string) bool {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return false
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	return true
}

// Load reads the server config and keeps the log level in sync with the
// file while the process runs.
func Load() (*Config, error) {
	v, fileName := newViper("config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("backpressure", "kick")
	v.SetDefault("rate_limit.joins", 10)
	v.SetDefault("rate_limit.interval", "1m")
	v.SetDefault("jwt.ttl", "1h")
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("turn.ttl", "24h")

	loaded := read(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyLogLevel(cfg.LogLevel)

	if loaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			level := v.GetString("log_level")
			ApplyLogLevel(level)
			log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", level).Msg("config reloaded")
		})
		v.WatchConfig()
	}

	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("server config")
	return &cfg, nil
}

// NewPeerViper returns a viper with peer defaults. Callers bind flags to it
// before LoadPeer.
func NewPeerViper() *viper.Viper {
	v, _ := newViper("peer")
	v.SetDefault("signal", "ws://localhost:8080/ws")
	v.SetDefault("stun", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("initiator", "lower-id")
	v.SetDefault("share_mode", "replace")
	v.SetDefault("log_level", "info")
	v.SetDefault("anomaly_limit", 64)
	v.SetDefault("pli_interval", "3s")
	return v
}

func LoadPeer(v *viper.Viper) (*PeerConfig, error) {
	read(v, v.ConfigFileUsed())

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Room == "" {
		return nil, fmt.Errorf("room is required")
	}
	ApplyLogLevel(cfg.LogLevel)
	return &cfg, nil
}

// ApplyLogLevel sets the global zerolog level; unknown names keep info.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
