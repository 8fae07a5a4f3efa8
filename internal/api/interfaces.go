// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/upload-widget/backend/internal/models"
	"github.com/upload-widget/backend/internal/upload"
)

// UploadControlHandler drives the upload manager on behalf of a UI
type UploadControlHandler interface {
	HandleGetUploads(c echo.Context) error
	HandleGetUploadsMsgpack(c echo.Context) error
	HandleAddUploads(c echo.Context) error
	HandleAddLocalFiles(c echo.Context) error
	HandleCancelUpload(c echo.Context) error
	HandleRemoveUpload(c echo.Context) error
	HandleToggleVisibility(c echo.Context) error
	HandleUploadEvents(c echo.Context) error
}

// ReceiveHandler is the upload endpoint and the stored file operations
type ReceiveHandler interface {
	HandleReceive(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SnapshotStreamHandler pushes upload snapshots over WebSocket
type SnapshotStreamHandler interface {
	HandleWebSocket(c echo.Context) error
}

// UploadManager defines the manager operations the API uses.
// This allows mocking in tests
type UploadManager interface {
	AddFiles(files ...upload.File) []string
	Cancel(id string) bool
	Remove(id string) error
	ToggleListVisibility() bool
	Get(id string) (models.UploadEntry, bool)
	Snapshot() models.UploadSnapshot
	Subscribe() (<-chan models.UploadSnapshot, func())
	Policy() *upload.Policy
}

var _ UploadManager = (*upload.Manager)(nil)
