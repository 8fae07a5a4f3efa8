// handlers_receive.go - Upload endpoint and stored file handlers
package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/upload-widget/backend/internal/storage"
	"github.com/upload-widget/backend/internal/upload"
)

// ReceiveOptions tunes the receive handler.
type ReceiveOptions struct {
	AllowDelete bool
	// Shutdown is closed when the server starts shutting down. New uploads
	// are refused from then on.
	Shutdown <-chan struct{}
}

// ReceiveHandlerImpl implements the ReceiveHandler interface
type ReceiveHandlerImpl struct {
	store  storage.Store
	opts   ReceiveOptions
	logger *slog.Logger
}

// NewReceiveHandler creates a new receive handler instance
func NewReceiveHandler(store storage.Store, opts ReceiveOptions, logger *slog.Logger) ReceiveHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReceiveHandlerImpl{
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

func (h *ReceiveHandlerImpl) shuttingDown() bool {
	select {
	case <-h.opts.Shutdown:
		return true
	default:
		return false
	}
}

// HandleReceive stores the raw request body. It answers 200 on success, which
// is the only status the upload manager treats as completed.
func (h *ReceiveHandlerImpl) HandleReceive(c echo.Context) error {
	if h.shuttingDown() {
		return NewServiceUnavailableError("server is shutting down")
	}
	req := c.Request()

	name := req.Header.Get(upload.HeaderFileName)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = path.Base(name)
	if name == "." || name == "/" {
		name = "upload"
	}

	info, err := h.store.Save(req.Context(), name, req.Header.Get(echo.HeaderContentType), req.ContentLength, req.Body)
	if err != nil {
		h.logger.Warn("receive failed", "name", name, "error", err)
		return NewInternalError("failed to save file", err)
	}

	h.logger.Info("file received", "id", info.ID, "name", info.Name, "size", info.Size, "contentType", info.ContentType)
	return c.JSON(http.StatusOK, info)
}

// HandleGetRecentFiles returns a list of recently received files
func (h *ReceiveHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewBadRequestError("limit must be a positive integer", err)
		}
		limit = n
	}

	files, err := h.store.List(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *ReceiveHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		return fromEntryError("file", id, err)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a stored file
func (h *ReceiveHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.opts.AllowDelete {
		return NewForbiddenError("file deletion is disabled")
	}

	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return fromEntryError("file", id, err)
	}

	return c.NoContent(http.StatusNoContent)
}
