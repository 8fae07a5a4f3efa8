// Package models contains domain types shared by the upload widget backend.
package models

import "time"

// UploadStatus represents the lifecycle state of a tracked upload entry.
type UploadStatus string

const (
	UploadStatusRejected  UploadStatus = "rejected"
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusFailed    UploadStatus = "failed"
)

// InFlight reports whether a transport operation may still be running for
// an entry in this state.
func (s UploadStatus) InFlight() bool {
	return s == UploadStatusPending || s == UploadStatusUploading
}

// Terminal reports whether no further transport callbacks apply.
func (s UploadStatus) Terminal() bool {
	return !s.InFlight()
}

// UploadEntry is the read-only projection of one tracked file.
type UploadEntry struct {
	ID            string       `json:"id" msgpack:"id"`
	FileName      string       `json:"fileName" msgpack:"fileName"`
	SizeBytes     int64        `json:"sizeBytes" msgpack:"sizeBytes"`
	MimeType      string       `json:"mimeType" msgpack:"mimeType"`
	Status        UploadStatus `json:"status" msgpack:"status"`
	Progress      float64      `json:"progressPercent" msgpack:"progressPercent"` // 0-100
	UploadedBytes int64        `json:"uploadedBytes" msgpack:"uploadedBytes"`
	ErrorCode     string       `json:"errorCode,omitempty" msgpack:"errorCode,omitempty"`
	ErrorMessage  string       `json:"errorMessage,omitempty" msgpack:"errorMessage,omitempty"`
	CreatedAt     time.Time    `json:"createdAt" msgpack:"createdAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
}

// UploadSnapshot is the full state a presentation layer renders.
type UploadSnapshot struct {
	Entries     []UploadEntry `json:"entries" msgpack:"entries"`
	ListVisible bool          `json:"listVisible" msgpack:"listVisible"`
	Empty       bool          `json:"empty" msgpack:"empty"`
	InFlight    int           `json:"inFlight" msgpack:"inFlight"`
	Hint        string        `json:"hint" msgpack:"hint"` // e.g. "JPEG, PNG, PDF, and MP4 formats up to 50MB"
	Version     uint64        `json:"version" msgpack:"version"`
}
