// Package api wires the HTTP surface of the Remap backend.
//
// Three route families exist:
//   - The RPC surface (/api/v1/commands/:name) carries every frontend
//     operation. Authentication is optional at the transport layer; the
//     per-command guard pipeline decides what each command requires and an
//     unauthenticated call to a guarded command becomes an HTTP 401.
//   - The event endpoints (/internal/v1/events/) are invoked by the document
//     platform on keyboard definition writes and trigger the review workflow
//     asynchronously.
//   - Probes: /health for liveness. Prometheus metrics are served on a
//     separate port by cmd/server, not through this router.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/remap-keys/remap-backend/internal/config"
	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/middleware"
	"github.com/remap-keys/remap-backend/internal/rpc"
	"github.com/remap-keys/remap-backend/internal/safego"
)

// ReviewRunner triggers a uniqueness review for one definition.
type ReviewRunner interface {
	Run(ctx context.Context, definitionID string)
}

// Notifier posts moderation-channel messages.
type Notifier interface {
	Message(ctx context.Context, definitionID, message string) error
}

// Dependencies carries everything the router needs. All fields are required
// except DB, which only the health endpoint uses.
type Dependencies struct {
	Config     *config.Config
	DB         *sqlx.DB
	Dispatcher *rpc.Dispatcher
	Verifier   middleware.TokenVerifier
	Limiter    middleware.Limiter
	Review     ReviewRunner
	Notifier   Notifier
}

// NewRouter creates and configures the gin router. Auth runs before the rate
// limiter so that authenticated callers are limited per uid rather than per
// IP.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(requestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(deps.Config.Security.CORS))
	router.Use(middleware.Auth(deps.Verifier))
	router.Use(middleware.RateLimit(deps.Config.Security.RateLimiting, deps.Limiter))

	router.GET("/health", healthHandler(deps.DB))

	router.POST("/api/v1/commands/:name", commandHandler(deps.Dispatcher))

	events := router.Group("/internal/v1/events")
	{
		events.POST("/definition-created", definitionCreatedHandler(deps.Review, deps.Notifier))
		events.POST("/definition-updated", definitionUpdatedHandler(deps.Review, deps.Notifier))
	}

	return router
}

// commandHandler decodes the JSON payload and invokes the named command.
// Command-level failures come back as a normal result body with success
// false; only transport-level conditions map to non-200 statuses.
func commandHandler(dispatcher *rpc.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		data := rpc.Data{}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&data); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
				return
			}
		}

		result, err := dispatcher.Invoke(c.Request.Context(), name, middleware.CallerFrom(c), data)
		if err != nil {
			switch {
			case errors.Is(err, rpc.ErrUnauthenticated):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			case errors.Is(err, rpc.ErrUnknownCommand):
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Unknown command: %s", name)})
			default:
				slog.Error("Command failed", "command", name,
					"request_id", middleware.GetRequestID(c), "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// definitionEvent is the payload the document platform sends on keyboard
// definition writes.
type definitionEvent struct {
	DefinitionID   string `json:"definitionId" binding:"required"`
	Name           string `json:"name"`
	ProductName    string `json:"productName"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus"`
}

func definitionCreatedHandler(review ReviewRunner, notifier Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event definitionEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
			return
		}

		if event.Status == models.DefinitionStatusInReview {
			startReview(c.Request.Context(), review, notifier, event)
		}
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	}
}

func definitionUpdatedHandler(review ReviewRunner, notifier Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event definitionEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
			return
		}

		// Only the submission transitions start a review; approval and
		// rejection by an administrator do not re-trigger it.
		submitted := event.Status == models.DefinitionStatusInReview &&
			(event.PreviousStatus == models.DefinitionStatusDraft ||
				event.PreviousStatus == models.DefinitionStatusRejected)
		if submitted {
			startReview(c.Request.Context(), review, notifier, event)
		}
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	}
}

// startReview announces the review request and runs the workflow without
// blocking the event response. The detached context survives the request.
func startReview(ctx context.Context, review ReviewRunner, notifier Notifier, event definitionEvent) {
	detached := context.WithoutCancel(ctx)
	safego.Go(func() {
		message := fmt.Sprintf("We have received a new review request: %s(%s)",
			event.Name, event.ProductName)
		if err := notifier.Message(detached, event.DefinitionID, message); err != nil {
			slog.Error("Failed to announce review request",
				"definitionId", event.DefinitionID, "error", err)
		}
		review.Run(detached, event.DefinitionID)
	})
}

func healthHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// requestLogger emits one structured record per request. The output format
// (json/text) follows the global handler installed by telemetry.SetupLogger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
