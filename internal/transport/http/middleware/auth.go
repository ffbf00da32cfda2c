package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const errUnauthorized = "Unauthorized"

// APIKey authenticates API routes against the shared tenant-facing key.
// The key arrives as "Authorization: Bearer <key>"; the bare kaptiv_api_key
// header is also accepted for older integrations. Comparison is constant
// time.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			presented = strings.TrimPrefix(header, "Bearer ")
		} else if legacy := c.GetHeader("kaptiv_api_key"); legacy != "" {
			presented = legacy
		}

		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": errUnauthorized})
			return
		}
		c.Next()
	}
}

// WorkerSecret authenticates the worker trigger route. The periodic trigger
// sends x-worker-secret; ?secret= is accepted for triggers that cannot set
// headers.
func WorkerSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("x-worker-secret")
		if presented == "" {
			presented = c.Query("secret")
		}

		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": errUnauthorized})
			return
		}
		c.Next()
	}
}
