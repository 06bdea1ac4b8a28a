package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/config"
)

func TestLocalStorage_Put(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	loc, err := s.Put(context.Background(), "reports/2026/job-1.json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "2026", "job-1.json"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestLocalStorage_KeyCannotEscape(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	loc, err := s.Put(context.Background(), "../../etc/x.json", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "etc", "x.json"), loc)

	_, err = s.Put(context.Background(), "/", []byte("{}"))
	assert.Error(t, err)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Storage_Put(t *testing.T) {
	fake := &fakeS3{}
	s := newS3Storage(fake, "inspection", "/archive/")

	loc, err := s.Put(context.Background(), "job-1.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://inspection/archive/job-1.json", loc)
	assert.Equal(t, "archive/job-1.json", *fake.input.Key)
	assert.Equal(t, "application/json", *fake.input.ContentType)
	assert.Equal(t, []byte(`{}`), fake.body)
}

func TestS3Storage_PutError(t *testing.T) {
	s := newS3Storage(&fakeS3{err: errors.New("denied")}, "inspection", "")
	_, err := s.Put(context.Background(), "job-1.json", []byte(`{}`))
	assert.ErrorContains(t, err, "denied")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), &config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	a, err := New(context.Background(), &config.StorageConfig{Backend: "local", Local: config.LocalFSConfig{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, a)
}
