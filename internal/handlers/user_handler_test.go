package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

type memKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memKeys) LookupKey(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.keys[key]
	if !ok {
		return "", user.ErrKeyNotFound
	}
	return uid, nil
}

func (m *memKeys) Issue(_ context.Context, key, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = userID
	return nil
}

func (m *memKeys) Revoke(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func newRouter(t *testing.T) (*gin.Engine, *memKeys) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	keys := &memKeys{keys: map[string]string{}}
	svc := user.NewAccountService(user.NewMemoryRepository(), keys, "handler-secret", time.Hour, Logger.NewNop())

	r := gin.New()
	r.Use(ErrorHandlerMiddleware(Logger.NewNop()), CORSMiddleware())
	NewUserHandler(svc, Logger.NewNop()).RegisterRoutes(r.Group("/api/v1"))
	return r, keys
}

func do(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAccountFlow(t *testing.T) {
	r, keys := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"login": "ada", "password": "analytical", "display_name": "Ada",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	accountID := gjson.Get(w.Body.String(), "account.id").String()
	require.NotEmpty(t, accountID)

	w = do(r, http.MethodPost, "/api/v1/accounts", "", map[string]string{"login": "ada", "password": "analytical"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"login": "ada", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"login": "ada", "password": "analytical"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := gjson.Get(w.Body.String(), "token.token").String()
	assert.Equal(t, accountID, gjson.Get(w.Body.String(), "token.user_id").String())

	w = do(r, http.MethodPost, "/api/v1/keys", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key := gjson.Get(w.Body.String(), "key").String()
	uid, err := keys.LookupKey(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, accountID, uid)

	w = do(r, http.MethodDelete, "/api/v1/keys/"+key, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodDelete, "/api/v1/keys/"+key, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignUpValidation(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodPost, "/api/v1/accounts", "", map[string]string{"login": "ab", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request data", gjson.Get(w.Body.String(), "error").String())
}

func TestKeysRequireToken(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/keys", "not.a.token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodOptions, "/api/v1/keys", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
