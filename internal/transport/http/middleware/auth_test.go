package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kaptiv/sequencer/internal/transport/http/middleware"
)

func protectedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "bearer token accepted",
			headers:    map[string]string{"Authorization": "Bearer secret-key"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "legacy header accepted",
			headers:    map[string]string{"kaptiv_api_key": "secret-key"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing credentials",
			headers:    nil,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong bearer token",
			headers:    map[string]string{"Authorization": "Bearer wrong"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong legacy header",
			headers:    map[string]string{"kaptiv_api_key": "wrong"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bearer prefix required",
			headers:    map[string]string{"Authorization": "secret-key"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "bad bearer wins over valid legacy header",
			headers: map[string]string{
				"Authorization":  "Bearer wrong",
				"kaptiv_api_key": "secret-key",
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	router := protectedRouter(middleware.APIKey("secret-key"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestWorkerSecret(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
	}{
		{
			name:       "header accepted",
			target:     "/protected",
			header:     "tick-secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "query fallback accepted",
			target:     "/protected?secret=tick-secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing secret",
			target:     "/protected",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong header",
			target:     "/protected",
			header:     "wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong query secret",
			target:     "/protected?secret=wrong",
			wantStatus: http.StatusUnauthorized,
		},
	}

	router := protectedRouter(middleware.WorkerSecret("tick-secret"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("x-worker-secret", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
