package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestParseOrigins_AnchorsPatterns(t *testing.T) {
	patterns, err := parseOrigins("https://example\\.com, *")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	require.Equal(t, "^https://example\\.com$", patterns[0].String())
	require.Equal(t, "^.*$", patterns[1].String())
}

func TestParseOrigins_RejectsBadPattern(t *testing.T) {
	_, err := parseOrigins("^chrome-extension://[a-z+$")
	require.Error(t, err)
}

func TestCorsMiddleware_DefaultOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(config.DefaultCORSOrigins))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"chrome-extension://abcdefghijklmnop", true},
		{"moz-extension://1b2c-3d4e", true},
		{"http://localhost:3000", true},
		{"https://localhost", true},
		{"https://evil.example.com", false},
		{"chrome-extension://abc/../x", false},
	}
	for _, tc := range cases {
		t.Run(tc.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			if tc.allowed {
				require.Equal(t, tc.origin, rec.Header().Get("Access-Control-Allow-Origin"))
				require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCorsMiddleware_PreflightShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(config.DefaultCORSOrigins))
	called := false
	router.POST("/api/v1/conversations", func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})
	router.OPTIONS("/api/v1/conversations", func(c *gin.Context) {
		called = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/conversations", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, called)
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
