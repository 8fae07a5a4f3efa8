package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/upload-widget/backend/internal/models"
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements Store on an S3 bucket. Object metadata for listing is
// kept in memory, the same as LocalStore.
type S3Store struct {
	mu     sync.RWMutex
	client s3API
	bucket string
	region string
	prefix string
	files  map[string]*models.FileInfo
	logger *slog.Logger
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithS3Logger sets the logger. A nil logger disables logging.
func WithS3Logger(logger *slog.Logger) S3Option {
	return func(s *S3Store) {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		s.logger = logger
	}
}

// WithKeyPrefix sets the prefix prepended to object keys.
func WithKeyPrefix(prefix string) S3Option {
	return func(s *S3Store) {
		s.prefix = prefix
	}
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, region string, opts ...S3Option) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newS3Store(s3.NewFromConfig(cfg), bucket, region, opts...), nil
}

func newS3Store(client s3API, bucket, region string, opts ...S3Option) *S3Store {
	s := &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		files:  make(map[string]*models.FileInfo),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *S3Store) key(id string) string {
	return s.prefix + id
}

// Save streams the body to a new object.
func (s *S3Store) Save(ctx context.Context, name, contentType string, size int64, r io.Reader) (*models.FileInfo, error) {
	contentType, r, err := resolveContentType(contentType, r)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	id := uuid.New().String()
	key := s.key(id)
	body := &countingReader{r: r}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"filename": name},
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("putting object %s: %w", key, err)
	}
	s.logger.Debug("object stored", "bucket", s.bucket, "key", key, "size", body.n)

	info := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        body.n,
		ContentType: contentType,
		UploadedAt:  time.Now(),
		Status:      "uploaded",
		Location:    s.objectURL(key),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

func (s *S3Store) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, strings.TrimPrefix(key, "/"))
}

// Get retrieves file metadata by ID.
func (s *S3Store) Get(_ context.Context, id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// List returns the most recent files.
func (s *S3Store) List(_ context.Context, limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes the object and its metadata.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}

	delete(s.files, id)
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
