package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"github.com/xpanvictor/xarvis-gateway/internal/handlers"
	"github.com/xpanvictor/xarvis-gateway/internal/handlers/websocket"
	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	memoryregistry "github.com/xpanvictor/xarvis-gateway/pkg/io/registry/memoryRegistry"
)

type noTurns struct{}

func (noTurns) ProcessText(context.Context, session.Session, string, string, bool) error {
	return nil
}

func (noTurns) ProcessVoice(context.Context, session.Session, string, []byte, string, bool) error {
	return nil
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := Logger.NewNop()
	m := metrics.New()
	sessions := session.NewManager(session.Config{SessionTimeout: time.Hour}, log)
	m.TrackSessions(sessions.Count)
	auth := user.NewAuthenticator(user.Options{StaticKeys: []string{"k"}}, log)
	ws := websocket.NewWebSocketHandler(log, sessions, memoryregistry.New(log), auth, noTurns{}, m, config.GatewayConfig{})
	t.Cleanup(func() { _ = ws.Close() })

	accounts := user.NewAccountService(user.NewMemoryRepository(), nil, "routes-secret", time.Hour, log)
	r := gin.New()
	InitializeRoutes(r, Dependencies{
		WebSocket:  ws,
		Users:      handlers.NewUserHandler(accounts, log),
		SessionAPI: handlers.NewSessionHandler(sessions, nil, accounts, log),
		Sessions:   sessions,
		Metrics:    m,
		Logger:     log,
	})
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := get(newEngine(t), "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "connections").Int())
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "sessions").Int())
}

func TestMetricsExposed(t *testing.T) {
	w := get(newEngine(t), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "xarvis_gateway_sessions")
}

func TestAPIMounted(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	body := `{"login":"routes","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusOK, get(r, "/stats").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/sessions").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/nothing").Code)
}
