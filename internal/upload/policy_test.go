package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	for _, ct := range []string{"image/jpeg", "image/png", "application/pdf", "video/mp4"} {
		assert.True(t, p.Accepts(ct), ct)
	}
	for _, ct := range []string{"text/plain", "Image/Jpeg", "image/jpg", "video/mp4 ", ""} {
		assert.False(t, p.Accepts(ct), ct)
	}

	assert.Equal(t, int64(50_000_000), p.MaxBytes())
	assert.False(t, p.EnforcesSizeLimit())
	assert.Nil(t, p.Check("video/mp4", 60_000_000), "limit is advisory by default")
	assert.True(t, p.OverLimit(60_000_000))
	assert.Equal(t, "JPEG, PNG, PDF, and MP4 formats up to 50MB", p.Hint())
}

func TestPolicy_Check(t *testing.T) {
	p, err := NewPolicy([]string{"image/png", "application/pdf"}, "2MiB", true)
	require.NoError(t, err)

	tests := []struct {
		name     string
		mimeType string
		size     int64
		wantCode string
	}{
		{name: "accepted", mimeType: "image/png", size: 1024},
		{name: "at limit", mimeType: "application/pdf", size: 2 * 1024 * 1024},
		{name: "over limit", mimeType: "application/pdf", size: 2*1024*1024 + 1, wantCode: CodeFileTooLarge},
		{name: "wrong type", mimeType: "image/jpeg", size: 1, wantCode: CodeRejectedType},
		{name: "wrong type wins over size", mimeType: "text/plain", size: 1 << 30, wantCode: CodeRejectedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uerr := p.Check(tt.mimeType, tt.size)
			if tt.wantCode == "" {
				assert.Nil(t, uerr)
				return
			}
			require.NotNil(t, uerr)
			assert.Equal(t, tt.wantCode, uerr.Code)
		})
	}
}

func TestPolicy_RejectedMessageListsTypes(t *testing.T) {
	p, err := NewPolicy([]string{"image/jpeg", "application/pdf"}, "10MB", false)
	require.NoError(t, err)

	uerr := p.Check("text/plain", 1)
	require.NotNil(t, uerr)
	assert.Equal(t, "This file type is not accepted. You can upload JPEG and PDF", uerr.Message)
	assert.Contains(t, uerr.Error(), `"text/plain"`)
}

func TestNewPolicy_Invalid(t *testing.T) {
	_, err := NewPolicy(nil, "50MB", false)
	assert.Error(t, err)

	_, err = NewPolicy([]string{" ", ""}, "50MB", false)
	assert.Error(t, err)

	_, err = NewPolicy([]string{"image/png"}, "fifty", false)
	assert.Error(t, err)

	_, err = NewPolicy([]string{"image/png"}, "0MB", false)
	assert.Error(t, err)
}

func TestNewPolicy_DeduplicatesTypes(t *testing.T) {
	p, err := NewPolicy([]string{"image/png", "image/png", " video/mp4 "}, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png", "video/mp4"}, p.AcceptedTypes())
	assert.Equal(t, "PNG and MP4 formats up to 50MB", p.Hint())
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `acceptedTypes:
  - image/png
  - image/webp
maxSize: 5MB
enforceSizeLimit: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png", "image/webp"}, p.AcceptedTypes())
	assert.Equal(t, int64(5_000_000), p.MaxBytes())
	assert.True(t, p.EnforcesSizeLimit())
	assert.Equal(t, "PNG and WEBP formats up to 5MB", p.Hint())
}

func TestParsePolicy_Defaults(t *testing.T) {
	p, err := ParsePolicy([]byte("enforceSizeLimit: true\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAcceptedTypes, p.AcceptedTypes())
	assert.Equal(t, int64(50_000_000), p.MaxBytes())
	assert.True(t, p.EnforcesSizeLimit())

	_, err = ParsePolicy([]byte("acceptedTypes: [unterminated"))
	assert.Error(t, err)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
