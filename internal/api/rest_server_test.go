package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/game"
	"github.com/annel0/descent/internal/storage"
	"github.com/annel0/descent/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *RestServer
	service *game.Service
}

func newTestEnv(t *testing.T, auth *Authenticator) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	bus := eventbus.NewMemoryBus(64)
	svc := game.NewService(store, world.NewGenerator(11), bus)
	t.Cleanup(func() {
		svc.Wait()
		bus.Close()
		store.Close()
	})

	reg := prometheus.NewRegistry()
	server := NewRestServer(Config{
		Service:    svc,
		Bus:        bus,
		Auth:       auth,
		Webhooks:   NewOutboundWebhookManager("test"),
		Registerer: reg,
		Gatherer:   reg,
	})
	t.Cleanup(server.webhooks.Close)
	return &testEnv{server: server, service: svc}
}

// envelope ответ API с сырыми данными
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func (e *testEnv) startGame(t *testing.T) *game.GameState {
	t.Helper()
	code, env := e.do(t, http.MethodPost, "/api/sessions", StartGameRequest{Theme: "alien_hive", Difficulty: "normal"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var state game.GameState
	decode(t, env.Data, &state)
	return &state
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	code, _ := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	state := env.startGame(t)
	id := state.Session.ID
	assert.Equal(t, world.ThemeAlienHive, state.Session.Theme)
	require.Len(t, state.Areas, 1)

	code, resp := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, code)
	var sessions []world.Session
	decode(t, resp.Data, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)

	code, resp = env.do(t, http.MethodPost, "/api/sessions/"+id+"/areas", GenerateAreaRequest{
		FromAreaID: "start",
		Direction:  "north",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var result world.GenerationResult
	decode(t, resp.Data, &result)
	back, ok := result.Area.Exit(world.South)
	require.True(t, ok)
	assert.Equal(t, "start", back.Target())

	// выход уже исследован
	code, _ = env.do(t, http.MethodPost, "/api/sessions/"+id+"/areas", GenerateAreaRequest{
		FromAreaID: "start",
		Direction:  "north",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var loaded game.GameState
	decode(t, resp.Data, &loaded)
	assert.Len(t, loaded.Areas, 2)
	assert.Equal(t, game.AreaScore, loaded.Session.Score)

	player := loaded.Player
	code, resp = env.do(t, http.MethodPost, "/api/sessions/"+id+"/sync", game.SyncInput{Player: player, DT: 0.016})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var synced game.SyncResult
	decode(t, resp.Data, &synced)
	assert.Equal(t, world.StartingAreaID, synced.Player.CurrentAreaID)

	code, _ = env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	state := env.startGame(t)
	id := state.Session.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"bad theme", http.MethodPost, "/api/sessions", StartGameRequest{Theme: "swamp", Difficulty: "normal"}, http.StatusBadRequest},
		{"bad difficulty", http.MethodPost, "/api/sessions", StartGameRequest{Theme: "alien_hive", Difficulty: "x"}, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/api/sessions", map[string]string{}, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/missing", nil, http.StatusNotFound},
		{"unknown area", http.MethodPost, "/api/sessions/" + id + "/areas", GenerateAreaRequest{FromAreaID: "nowhere", Direction: "north"}, http.StatusNotFound},
		{"bad direction", http.MethodPost, "/api/sessions/" + id + "/areas", GenerateAreaRequest{FromAreaID: "start", Direction: "sideways"}, http.StatusBadRequest},
		{"missing exit", http.MethodPost, "/api/sessions/" + id + "/areas", GenerateAreaRequest{FromAreaID: "start", Direction: "south"}, http.StatusBadRequest},
		{"bad context", http.MethodPost, "/api/sessions/" + id + "/areas", GenerateAreaRequest{FromAreaID: "start", Direction: "east", Context: &world.GenerationContext{ExplorationDepth: -1}}, http.StatusBadRequest},
		{"sync without player", http.MethodPost, "/api/sessions/" + id + "/sync", game.SyncInput{DT: 1}, http.StatusBadRequest},
		{"sync unknown session", http.MethodPost, "/api/sessions/missing/sync", game.SyncInput{Player: state.Player}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code, resp.Message)
			assert.False(t, resp.Success)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(game.ErrGenerationInProgress))
	assert.Equal(t, http.StatusInternalServerError, statusFor(storage.ErrNotInitialized))
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startGame(t)

	code, resp := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats struct {
		Sessions struct {
			Active int `json:"active"`
		} `json:"sessions"`
		Server map[string]interface{} `json:"server"`
	}
	decode(t, resp.Data, &stats)
	assert.Equal(t, 1, stats.Sessions.Active)
	assert.Contains(t, stats.Server, "uptime")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/health", nil)

	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "descent_api_http_request_duration_seconds")
}

func TestJWTAuth(t *testing.T) {
	auth, err := NewAuthenticator("test-secret", "descent")
	require.NoError(t, err)
	env := newTestEnv(t, auth)

	code, _ := env.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/api/sessions", nil, "Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/api/sessions", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, code)

	token, err := auth.IssueToken("pilot-1", time.Minute)
	require.NoError(t, err)
	code, _ = env.do(t, http.MethodGet, "/api/sessions", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, code)

	// health остаётся открытым
	code, _ = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthenticator(t *testing.T) {
	_, err := NewAuthenticator("", "descent")
	assert.ErrorIs(t, err, ErrEmptySecret)

	auth, err := NewAuthenticator("secret", "descent")
	require.NoError(t, err)

	token, err := auth.IssueToken("pilot", time.Minute)
	require.NoError(t, err)
	subject, err := auth.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "pilot", subject)

	expired, err := auth.IssueToken("pilot", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Validate(expired)
	assert.Error(t, err)

	other, err := NewAuthenticator("other-secret", "descent")
	require.NoError(t, err)
	_, err = other.Validate(token)
	assert.Error(t, err)

	foreign, err := NewAuthenticator("secret", "someone-else")
	require.NoError(t, err)
	_, err = foreign.Validate(token)
	assert.Error(t, err)
}
