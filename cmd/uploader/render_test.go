package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upload-widget/backend/internal/models"
)

func TestRenderer_PrintsOnChange(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	entry := models.UploadEntry{ID: "a", FileName: "photo.png", SizeBytes: 2048, Status: models.UploadStatusPending}
	snap := func(e models.UploadEntry) models.UploadSnapshot {
		return models.UploadSnapshot{Entries: []models.UploadEntry{e}}
	}

	r.Render(snap(entry))
	r.Render(snap(entry))

	entry.Status = models.UploadStatusUploading
	entry.Progress = 12
	r.Render(snap(entry))
	entry.Progress = 15
	r.Render(snap(entry))
	entry.Progress = 55
	r.Render(snap(entry))

	entry.Status = models.UploadStatusCompleted
	entry.Progress = 100
	r.Render(snap(entry))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "pending")
	assert.Contains(t, lines[1], "uploading  12%")
	assert.Contains(t, lines[2], "uploading  55%")
	assert.Contains(t, lines[3], "done")
}

func TestFormatEntry_Error(t *testing.T) {
	line := formatEntry(models.UploadEntry{
		FileName:     "notes.txt",
		SizeBytes:    10,
		Status:       models.UploadStatusRejected,
		ErrorMessage: "File type not accepted.",
	})
	assert.Contains(t, line, "notes.txt")
	assert.Contains(t, line, "rejected: File type not accepted.")
}

func TestSummarize(t *testing.T) {
	s := summarize(models.UploadSnapshot{Entries: []models.UploadEntry{
		{Status: models.UploadStatusCompleted},
		{Status: models.UploadStatusCompleted},
		{Status: models.UploadStatusFailed},
		{Status: models.UploadStatusRejected},
	}})
	assert.Equal(t, summary{completed: 2, failed: 1, rejected: 1}, s)
	assert.Equal(t, "2 completed, 1 failed, 1 rejected", s.String())
}
