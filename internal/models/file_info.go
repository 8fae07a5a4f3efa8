package models

import "time"

// FileInfo represents metadata about a file received by the upload endpoint.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Status      string    `json:"status"` // "uploaded"
	Location    string    `json:"location,omitempty"`
}
