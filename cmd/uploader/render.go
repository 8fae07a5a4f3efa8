package main

import (
	"fmt"
	"io"

	"github.com/labstack/gommon/bytes"
	"github.com/upload-widget/backend/internal/models"
)

// renderer prints one line per entry whenever its status changes or its
// progress crosses another 10% step.
type renderer struct {
	w    io.Writer
	seen map[string]entryState
}

type entryState struct {
	status models.UploadStatus
	step   int
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, seen: make(map[string]entryState)}
}

func (r *renderer) Render(snap models.UploadSnapshot) {
	for _, e := range snap.Entries {
		state := entryState{status: e.Status, step: int(e.Progress) / 10}
		if prev, ok := r.seen[e.ID]; ok && prev == state {
			continue
		}
		r.seen[e.ID] = state
		fmt.Fprintln(r.w, formatEntry(e))
	}
}

func formatEntry(e models.UploadEntry) string {
	size := bytes.Format(e.SizeBytes)
	switch e.Status {
	case models.UploadStatusUploading:
		return fmt.Sprintf("  %-30s %9s  uploading %3.0f%%", e.FileName, size, e.Progress)
	case models.UploadStatusCompleted:
		return fmt.Sprintf("  %-30s %9s  done", e.FileName, size)
	case models.UploadStatusFailed, models.UploadStatusRejected:
		return fmt.Sprintf("  %-30s %9s  %s: %s", e.FileName, size, e.Status, e.ErrorMessage)
	default:
		return fmt.Sprintf("  %-30s %9s  %s", e.FileName, size, e.Status)
	}
}
