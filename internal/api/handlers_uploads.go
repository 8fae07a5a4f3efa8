// handlers_uploads.go - Upload manager control handlers
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/upload-widget/backend/internal/models"
	"github.com/upload-widget/backend/internal/upload"
	"github.com/vmihailenco/msgpack/v5"
)

// defaultFormMemory matches net/http's default for multipart parsing.
const defaultFormMemory = 32 << 20

// ControlOptions tunes the control handler.
type ControlOptions struct {
	// DetectContentType sniffs files added by path instead of trusting the extension.
	DetectContentType bool
	// FormMemory is the multipart memory limit in bytes; larger parts spill to disk.
	FormMemory int64
	// LocalRoot is the only directory files may be added from by path.
	// Adding by path is disabled when it is empty.
	LocalRoot string
	// Shutdown is closed when the server starts shutting down; open event
	// streams end then.
	Shutdown <-chan struct{}
}

// UploadControlHandlerImpl implements the UploadControlHandler interface
type UploadControlHandlerImpl struct {
	manager      UploadManager
	opts         ControlOptions
	localRoot    string // LocalRoot with symlinks resolved, empty when disabled
	localRootAbs string
	logger       *slog.Logger
}

// NewUploadControlHandler creates a new upload control handler
func NewUploadControlHandler(manager UploadManager, opts ControlOptions, logger *slog.Logger) UploadControlHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.FormMemory <= 0 {
		opts.FormMemory = defaultFormMemory
	}
	h := &UploadControlHandlerImpl{
		manager: manager,
		opts:    opts,
		logger:  logger,
	}
	if opts.LocalRoot != "" {
		abs, root, err := resolveDir(opts.LocalRoot)
		if err != nil {
			logger.Warn("adding files by path disabled", "root", opts.LocalRoot, "error", err)
		} else {
			h.localRootAbs, h.localRoot = abs, root
		}
	}
	return h
}

// HandleGetUploads returns the current snapshot
func (h *UploadControlHandlerImpl) HandleGetUploads(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Snapshot())
}

// HandleGetUploadsMsgpack returns the current snapshot encoded as msgpack
func (h *UploadControlHandlerImpl) HandleGetUploadsMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(h.manager.Snapshot())
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleAddUploads accepts one or more files from a multipart form (the
// browse and drop path) and hands them to the manager
func (h *UploadControlHandlerImpl) HandleAddUploads(c echo.Context) error {
	req := c.Request()
	if err := req.ParseMultipartForm(h.opts.FormMemory); err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	defer req.MultipartForm.RemoveAll()
	headers := req.MultipartForm.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files")
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readFormFile(fh)
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("failed to read %s", fh.Filename), err)
		}
		files = append(files, f)
	}

	ids := h.manager.AddFiles(files...)
	h.logger.Info("files added", "count", len(ids), "source", "form")
	return c.JSON(http.StatusAccepted, addFilesResponse{IDs: ids, Snapshot: h.manager.Snapshot()})
}

// HandleAddLocalFiles adds files by path on the server host
func (h *UploadControlHandlerImpl) HandleAddLocalFiles(c echo.Context) error {
	if h.localRoot == "" {
		return NewForbiddenError("adding files by path is disabled")
	}
	var req addPathsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	// Open everything first so a bad path adds nothing.
	files := make([]upload.File, 0, len(req.Paths))
	for _, p := range req.Paths {
		resolved, err := h.resolveLocalPath(p)
		if err != nil {
			return err
		}
		f, err := upload.OpenLocalFile(resolved, h.opts.DetectContentType)
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("cannot open %s", p), err)
		}
		files = append(files, f)
	}

	ids := h.manager.AddFiles(files...)
	h.logger.Info("files added", "count", len(ids), "source", "paths")
	return c.JSON(http.StatusAccepted, addFilesResponse{IDs: ids, Snapshot: h.manager.Snapshot()})
}

// HandleCancelUpload signals cancellation of an in-flight upload. The entry
// disappears once the transport acknowledges the abort.
func (h *UploadControlHandlerImpl) HandleCancelUpload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if _, ok := h.manager.Get(id); !ok {
		return NewNotFoundError("upload", id)
	}

	cancelled := h.manager.Cancel(id)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":        id,
		"cancelled": cancelled,
	})
}

// HandleRemoveUpload dismisses a finished, failed or rejected entry
func (h *UploadControlHandlerImpl) HandleRemoveUpload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.manager.Remove(id); err != nil {
		return fromEntryError("upload", id, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleToggleVisibility shows or hides the entry list
func (h *UploadControlHandlerImpl) HandleToggleVisibility(c echo.Context) error {
	visible := h.manager.ToggleListVisibility()
	return c.JSON(http.StatusOK, map[string]bool{"listVisible": visible})
}

// HandleUploadEvents streams snapshots via SSE until the client goes away
func (h *UploadControlHandlerImpl) HandleUploadEvents(c echo.Context) error {
	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	snapshots, unsubscribe := h.manager.Subscribe()
	defer unsubscribe()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.opts.Shutdown:
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Response(), "event: snapshot\ndata: %s\n\n", data)
			c.Response().Flush()
		}
	}
}

// resolveLocalPath resolves p against the local root and rejects anything
// that ends up outside it, symlinks included. The lexical check runs first so
// nothing outside the root is ever stat'ed.
func (h *UploadControlHandlerImpl) resolveLocalPath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.localRoot, p)
	}
	p = filepath.Clean(p)
	if !within(h.localRoot, p) && !within(h.localRootAbs, p) {
		return "", NewForbiddenError(fmt.Sprintf("path is outside the local root: %s", p))
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", NewBadRequestError(fmt.Sprintf("cannot open %s", p), nil)
	}
	if !within(h.localRoot, resolved) {
		return "", NewForbiddenError(fmt.Sprintf("path is outside the local root: %s", p))
	}
	return resolved, nil
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveDir returns dir as an absolute path, before and after resolving
// symlinks.
func resolveDir(dir string) (abs, resolved string, err error) {
	abs, err = filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	resolved, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", "", err
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%s is not a directory", resolved)
	}
	return abs, resolved, nil
}

// Request/Response types

type addPathsRequest struct {
	Paths []string `json:"paths"`
}

func (r *addPathsRequest) validate() error {
	if len(r.Paths) == 0 {
		return NewValidationError("paths")
	}
	for _, p := range r.Paths {
		if p == "" {
			return NewValidationError("paths")
		}
	}
	return nil
}

type addFilesResponse struct {
	IDs      []string              `json:"ids"`
	Snapshot models.UploadSnapshot `json:"snapshot"`
}

// Helper functions

// readFormFile buffers one multipart file. The declared part Content-Type is
// kept as the file type, the same value a browser exposes as File.type.
func readFormFile(fh *multipart.FileHeader) (upload.File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return upload.NewMemoryFile(fh.Filename, fh.Header.Get(echo.HeaderContentType), data), nil
}
