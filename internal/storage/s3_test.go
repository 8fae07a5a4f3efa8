package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	lengths   map[string]*int64
	putErr    error
	deleteErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		lengths: make(map[string]*int64),
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	f.lengths[key] = in.ContentLength
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, "uploads-bucket", "eu-west-1", WithKeyPrefix("incoming/"))

	info, err := store.Save(ctx, "clip.mp4", "video/mp4", 5, strings.NewReader("movie"))
	require.NoError(t, err)

	key := "incoming/" + info.ID
	assert.Equal(t, []byte("movie"), fake.objects[key])
	assert.Equal(t, "video/mp4", fake.types[key])
	require.NotNil(t, fake.lengths[key])
	assert.Equal(t, int64(5), *fake.lengths[key])
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "https://uploads-bucket.s3.eu-west-1.amazonaws.com/"+key, info.Location)

	got, err := store.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, info.ID))
	assert.NotContains(t, fake.objects, key)
	assert.ErrorIs(t, store.Delete(ctx, info.ID), ErrNotFound)
}

func TestS3Store_UnknownLengthAndType(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "b", "us-east-1")

	info, err := store.Save(context.Background(), "blob", "", -1, strings.NewReader(string(pngHeader)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(len(pngHeader)), info.Size)
	assert.Nil(t, fake.lengths[info.ID])
}

func TestS3Store_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3Store(fake, "b", "us-east-1")

	fake.putErr = errors.New("access denied")
	_, err := store.Save(ctx, "a.png", "image/png", 1, strings.NewReader("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	list, _ := store.List(ctx, 0)
	assert.Empty(t, list, "failed puts are not indexed")

	fake.putErr = nil
	info, err := store.Save(ctx, "a.png", "image/png", 1, strings.NewReader("a"))
	require.NoError(t, err)

	fake.deleteErr = errors.New("throttled")
	require.Error(t, store.Delete(ctx, info.ID))
	_, err = store.Get(ctx, info.ID)
	assert.NoError(t, err, "metadata is kept when the delete fails")

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), "", "us-east-1")
	assert.Error(t, err)
}
