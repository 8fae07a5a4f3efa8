// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/upload-widget/backend/internal/storage"
	"github.com/upload-widget/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store             storage.Store
	UploadMgr         UploadManager
	Control           ControlOptions
	AllowFileDeletion bool
	WSMaxMessageKB    int
	AllowOrigins      string // comma separated, shared with CORS
	Version           string
	Logger            *slog.Logger

	// Shutdown is closed when the server starts shutting down. Event
	// streams and WebSocket connections end and new uploads get 503.
	Shutdown <-chan struct{}
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Receive   ReceiveHandler
	Control   UploadControlHandler
	WebSocket SnapshotStreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	control := deps.Control
	control.Shutdown = deps.Shutdown
	receive := ReceiveOptions{
		AllowDelete: deps.AllowFileDeletion,
		Shutdown:    deps.Shutdown,
	}
	ws := WebSocketOptions{
		MaxMessageKB: deps.WSMaxMessageKB,
		AllowOrigins: splitOrigins(deps.AllowOrigins),
		Shutdown:     deps.Shutdown,
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.UploadMgr),
		Receive:   NewReceiveHandler(deps.Store, receive, deps.Logger),
		Control:   NewUploadControlHandler(deps.UploadMgr, control, deps.Logger),
		WebSocket: NewWebSocketHandler(deps.UploadMgr, ws, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Upload endpoint targeted by the transport
	e.POST("/upload", handlers.Receive.HandleReceive)

	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Stored files
	filesGroup := apiGroup.Group("/files")
	filesGroup.GET("/recent", handlers.Receive.HandleGetRecentFiles)
	filesGroup.GET("/:id", handlers.Receive.HandleGetFile)
	filesGroup.DELETE("/:id", handlers.Receive.HandleDeleteFile)

	// Upload manager control
	uploadsGroup := apiGroup.Group("/uploads")
	uploadsGroup.GET("", handlers.Control.HandleGetUploads)
	uploadsGroup.GET("/msgpack", handlers.Control.HandleGetUploadsMsgpack)
	uploadsGroup.GET("/events", handlers.Control.HandleUploadEvents)
	uploadsGroup.POST("", handlers.Control.HandleAddUploads)
	uploadsGroup.POST("/paths", handlers.Control.HandleAddLocalFiles)
	uploadsGroup.POST("/visibility", handlers.Control.HandleToggleVisibility)
	uploadsGroup.POST("/:id/cancel", handlers.Control.HandleCancelUpload)
	uploadsGroup.DELETE("/:id", handlers.Control.HandleRemoveUpload)

	// WebSocket endpoint
	apiGroup.GET("/ws/uploads", handlers.WebSocket.HandleWebSocket)
}

// MiddlewareOptions configures SetupMiddleware.
type MiddlewareOptions struct {
	EnableRequestLogging bool
	EnableCORS           bool
	AllowOrigins         string
	BodyLimit            string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !opts.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				path == "/api/uploads" ||
				strings.HasSuffix(path, "/events") ||
				strings.HasPrefix(path, "/api/ws/")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.EnableCORS {
		origins := splitOrigins(opts.AllowOrigins)
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, upload.HeaderFileName},
			ExposeHeaders: []string{echo.HeaderContentLength},
		}))
	}
}

// splitOrigins parses a comma separated origin list.
func splitOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
