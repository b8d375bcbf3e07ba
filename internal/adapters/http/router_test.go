package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/VoiceMesh/internal/adapters/auth"
	"github.com/dkeye/VoiceMesh/internal/adapters/ice"
	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/config"
)

type brokenTurn struct{}

func (brokenTurn) Generate(context.Context) (ice.Credentials, error) {
	return ice.Credentials{}, errors.New("upstream down")
}

func newRouter(t *testing.T, deps Deps) nethttp.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Mode: "test", Secret: "cookie-secret", StaticPath: t.TempDir(), CORSOrigins: []string{"*"}}
	deps.Board = &app.Switchboard{Registry: app.NewRegistry(), Rooms: app.NewRoomManager()}
	deps.Board.Rooms.GetOrCreate("r1")
	return SetupRouter(context.Background(), cfg, deps)
}

func do(h nethttp.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndRooms(t *testing.T) {
	h := newRouter(t, Deps{})

	rec := do(h, nethttp.MethodGet, "/health", "")
	var health HealthResponse
	if rec.Code != nethttp.StatusOK || json.Unmarshal(rec.Body.Bytes(), &health) != nil {
		t.Fatalf("health: %d %s", rec.Code, rec.Body)
	}
	if health.Status != "ok" || health.Rooms != 1 || health.Sessions != 0 {
		t.Fatalf("health = %+v", health)
	}

	rec = do(h, nethttp.MethodGet, "/api/rooms", "")
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), `"id":"r1"`) {
		t.Fatalf("rooms: %d %s", rec.Code, rec.Body)
	}
}

func TestTokenEndpoint(t *testing.T) {
	if rec := do(newRouter(t, Deps{}), nethttp.MethodPost, "/api/token", `{"roomId":"r1"}`); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("disabled: %d", rec.Code)
	}

	tokens := auth.NewTokens("s3cret", time.Hour)
	h := newRouter(t, Deps{Tokens: tokens})
	if rec := do(h, nethttp.MethodPost, "/api/token", `{"userId":"alice"}`); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("missing room: %d", rec.Code)
	}

	rec := do(h, nethttp.MethodPost, "/api/token", `{"roomId":"r1","userId":"alice"}`)
	var resp TokenResponse
	if rec.Code != nethttp.StatusOK || json.Unmarshal(rec.Body.Bytes(), &resp) != nil {
		t.Fatalf("issue: %d %s", rec.Code, rec.Body)
	}
	if err := tokens.Verify(resp.Token, "r1", "alice"); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestTurnCredentials(t *testing.T) {
	var static ice.Credentials
	static.IceServers.URLs = []string{"turn:turn.example.org:3478"}
	static.IceServers.Username = "u"
	static.IceServers.Credential = "p"

	rec := do(newRouter(t, Deps{Turn: StaticTurn(static)}), nethttp.MethodGet, "/api/turn-credentials", "")
	var got ice.Credentials
	if rec.Code != nethttp.StatusOK || json.Unmarshal(rec.Body.Bytes(), &got) != nil {
		t.Fatalf("turn: %d %s", rec.Code, rec.Body)
	}
	if got.IceServers.Username != "u" || len(got.IceServers.URLs) != 1 {
		t.Fatalf("credentials = %+v", got)
	}

	if rec := do(newRouter(t, Deps{Turn: brokenTurn{}}), nethttp.MethodGet, "/api/turn-credentials", ""); rec.Code != nethttp.StatusBadGateway {
		t.Fatalf("broken upstream: %d", rec.Code)
	}
	if rec := do(newRouter(t, Deps{}), nethttp.MethodGet, "/api/turn-credentials", ""); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("disabled: %d", rec.Code)
	}
}
