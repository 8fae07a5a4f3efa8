package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a handle to a selected file. ContentType is the declared type
// used for policy checks; it is never re-derived from content after creation.
type File interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// extension types missing from the standard library's builtin table
var extraTypes = map[string]string{
	".mp4": "video/mp4",
	".m4v": "video/mp4",
	".jpe": "image/jpeg",
}

// LocalFile is a file on disk.
type LocalFile struct {
	path        string
	name        string
	size        int64
	contentType string
}

// OpenLocalFile stats path and declares its content type from the file
// extension, the way browsers populate File.type. With sniff set, or when
// the extension is unknown, the type is detected from the file content.
func OpenLocalFile(path string, sniff bool) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType := ""
	if !sniff {
		contentType = typeByExtension(path)
	}
	if contentType == "" {
		mt, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("detecting content type of %s: %w", path, err)
		}
		contentType = baseType(mt.String())
	}

	return &LocalFile{
		path:        path,
		name:        filepath.Base(path),
		size:        info.Size(),
		contentType: contentType,
	}, nil
}

func (f *LocalFile) Name() string        { return f.name }
func (f *LocalFile) Size() int64         { return f.size }
func (f *LocalFile) ContentType() string { return f.contentType }
func (f *LocalFile) Path() string        { return f.path }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// MemoryFile is a file held in memory, e.g. a multipart part received from
// the browser with its declared content type.
type MemoryFile struct {
	name        string
	contentType string
	data        []byte
}

// NewMemoryFile wraps data. contentType is taken as declared.
func NewMemoryFile(name, contentType string, data []byte) *MemoryFile {
	return &MemoryFile{name: name, contentType: baseType(contentType), data: data}
}

func (f *MemoryFile) Name() string        { return f.name }
func (f *MemoryFile) Size() int64         { return int64(len(f.data)) }
func (f *MemoryFile) ContentType() string { return f.contentType }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func typeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return baseType(t)
	}
	return extraTypes[ext]
}

// baseType strips parameters: "text/plain; charset=utf-8" -> "text/plain".
// Case is preserved; accepted type matching is case-sensitive.
func baseType(contentType string) string {
	t, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(t)
}
