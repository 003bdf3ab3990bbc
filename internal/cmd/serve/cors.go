package serve

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

func corsMiddleware(originsCSV string) gin.HandlerFunc {
	patterns, err := parseOrigins(originsCSV)
	if err != nil {
		// StartServer rejects bad patterns; other callers get a closed policy.
		log.Error("Ignoring CORS origins", "err", err)
		patterns = nil
	}
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin != "" && originAllowed(patterns, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// parseOrigins compiles a comma-separated list of origin patterns. "*" matches
// any origin; every other entry is a regular expression anchored at both ends.
func parseOrigins(raw string) ([]*regexp.Regexp, error) {
	var result []*regexp.Regexp
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if v == "*" {
			v = ".*"
		}
		if !strings.HasPrefix(v, "^") {
			v = "^" + v
		}
		if !strings.HasSuffix(v, "$") {
			v += "$"
		}
		re, err := regexp.Compile(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CORS origin pattern %q: %w", part, err)
		}
		result = append(result, re)
	}
	return result, nil
}

func originAllowed(patterns []*regexp.Regexp, origin string) bool {
	for _, re := range patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}
