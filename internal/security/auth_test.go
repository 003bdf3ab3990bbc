package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(tokens map[string]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TokenAuthMiddleware(tokens))
	router.GET("/api/v1/conversations", func(c *gin.Context) {
		c.String(http.StatusOK, GetClientID(c))
	})
	return router
}

func doGet(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTokenAuthMiddleware_OpenWhenNoTokens(t *testing.T) {
	router := newAuthRouter(nil)
	rec := doGet(router, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenAuthMiddleware_AcceptsKnownToken(t *testing.T) {
	router := newAuthRouter(map[string]string{"s3cret": "extension"})
	rec := doGet(router, "Bearer s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "extension", rec.Body.String())
}

func TestTokenAuthMiddleware_Rejects(t *testing.T) {
	router := newAuthRouter(map[string]string{"s3cret": "extension"})
	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic s3cret",
		"unknown token":  "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			rec := doGet(router, header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.JSONEq(t, `{"error":"Invalid authentication token"}`, rec.Body.String())
		})
	}
}
