package ice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Credentials is the body served on the credentials endpoint.
type Credentials struct {
	IceServers struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username,omitempty"`
		Credential string   `json:"credential,omitempty"`
	} `json:"iceServers"`
}

func (c Credentials) Servers() []webrtc.ICEServer {
	if len(c.IceServers.URLs) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{
		URLs:       c.IceServers.URLs,
		Username:   c.IceServers.Username,
		Credential: c.IceServers.Credential,
	}}
}

// HTTPSource fetches ICE servers from a credentials endpoint and appends the
// static servers after them.
type HTTPSource struct {
	URL    string
	Static []webrtc.ICEServer
	Client *http.Client
}

func (s HTTPSource) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	if s.URL == "" {
		return s.Static, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	creds, err := do(s.client(), req)
	if err != nil {
		return nil, err
	}
	servers := append(creds.Servers(), s.Static...)
	log.Debug().Str("module", "ice").Int("servers", len(servers)).Msg("ice servers fetched")
	return servers, nil
}

func (s HTTPSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func do(client *http.Client, req *http.Request) (Credentials, error) {
	var creds Credentials
	resp, err := client.Do(req)
	if err != nil {
		return creds, fmt.Errorf("fetch ice credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return creds, fmt.Errorf("fetch ice credentials: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return creds, fmt.Errorf("decode ice credentials: %w", err)
	}
	return creds, nil
}

// TurnKeys mints short-lived TURN credentials from a key service
// (Cloudflare-style generate endpoint).
type TurnKeys struct {
	Endpoint string
	APIToken string
	TTL      time.Duration
	Client   *http.Client
}

func (k TurnKeys) Generate(ctx context.Context) (Credentials, error) {
	ttl := k.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	body, err := json.Marshal(map[string]int64{"ttl": int64(ttl / time.Second)})
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+k.APIToken)

	client := k.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	creds, err := do(client, req)
	if err != nil {
		return Credentials{}, err
	}
	log.Info().Str("module", "ice").Str("username", creds.IceServers.Username).Msg("turn credentials generated")
	return creds, nil
}
