package system

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	registrylifecycle "github.com/chirino/chatmem-service/internal/registry/lifecycle"
	registryroute "github.com/chirino/chatmem-service/internal/registry/route"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingStore struct {
	registrystore.ConversationStore
	err error
}

func (p *pingStore) Ping(context.Context) error { return p.err }

func mount(t *testing.T, store registrystore.ConversationStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := &registryroute.Mount{Router: gin.New(), Store: store}
	for _, loader := range registryroute.MainRouteLoaders() {
		require.NoError(t, loader(m))
	}
	for _, loader := range registryroute.ManagementRouteLoaders() {
		require.NoError(t, loader(m))
	}
	return m.Router
}

func get(r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRoot(t *testing.T) {
	rec, body := get(mount(t, nil), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ChatMem API is running", body["message"])
	assert.Equal(t, Version, body["version"])
}

func TestHealth(t *testing.T) {
	rec, body := get(mount(t, nil), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestReady(t *testing.T) {
	store := &pingStore{}
	r := mount(t, store)

	MarkNotReady()
	rec, _ := get(r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, registrylifecycle.StartAll(context.Background()))
	rec, body := get(r, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	store.err = errors.New("database is locked")
	rec, _ = get(r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store.err = nil
	require.NoError(t, registrylifecycle.StopAll(context.Background()))
	rec, _ = get(r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	mount(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
