package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	registryroute "github.com/chirino/chatmem-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIsValid(t *testing.T) {
	doc, err := Document()
	require.NoError(t, err)

	assert.Equal(t, "ChatMem API", doc.Info.Title)
	for _, path := range []string{"/api/v1/conversations", "/api/v1/conversations/{conversationId}"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	msg := doc.Components.Schemas["Message"].Value
	require.NotNil(t, msg)
	assert.Len(t, msg.Properties["role"].Value.Enum, 3)
}

func TestServeDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := &registryroute.Mount{Router: gin.New()}
	for _, loader := range registryroute.MainRouteLoaders() {
		require.NoError(t, loader(m))
	}

	rec := httptest.NewRecorder()
	m.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "3.0.3", body["openapi"])
	assert.Contains(t, body["paths"], "/api/v1/conversations")
}
