package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/kaptiv/sequencer/internal/transport/http/handler"
	"github.com/kaptiv/sequencer/internal/transport/http/middleware"

	sloggin "github.com/samber/slog-gin"
)

type Handlers struct {
	OAuth    *handler.OAuthHandler
	Email    *handler.EmailHandler
	Sequence *handler.SequenceHandler
	Worker   *handler.WorkerHandler
}

// NewRouter wires the full HTTP surface. Everything except the OAuth
// callback and the worker trigger sits behind the shared API key; those two
// carry their own secrets.
func NewRouter(logger *slog.Logger, h Handlers, apiKey, workerSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	apiAuth := middleware.APIKey(apiKey)

	// Provider redirect target; authenticated by the one-shot state nonce.
	r.GET("/oauth2/callback", h.OAuth.Callback)

	r.POST("/oauth/start", apiAuth, h.OAuth.Start)
	r.GET("/status", apiAuth, h.OAuth.Status)
	r.POST("/send_email", apiAuth, h.Email.Send)

	api := r.Group("/api", apiAuth)
	api.POST("/steps", h.Sequence.CreateSteps)
	api.POST("/sequence_step_upsert", h.Sequence.UpsertStep)
	api.POST("/start_sequence", h.Sequence.StartSequence)

	r.GET("/api/run_scheduled_jobs", middleware.WorkerSecret(workerSecret), h.Worker.Run)

	return r
}
