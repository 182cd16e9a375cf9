package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestValidHandle(t *testing.T) {
	h := newHandle(pngBytes)
	assert.True(t, strings.HasSuffix(h, ".png"))
	assert.True(t, ValidHandle(h))
	assert.Equal(t, "image/png", ContentType(h))

	for _, bad := range []string{"", "../etc/passwd", "abc.png", "0f8fad5b-d9cb-469f-a165-70867728950e.exe"} {
		assert.False(t, ValidHandle(bad), bad)
	}
}

func TestDiskStoreLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "upload", "profile")
	ds, err := NewDiskStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	h, err := ds.Save(ctx, pngBytes)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, h))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, onDisk)

	rc, err := ds.Open(ctx, h)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	require.NoError(t, ds.Delete(ctx, h))
	require.NoError(t, ds.Delete(ctx, h), "deleting a missing image is a no-op")

	_, err = ds.Open(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreRejectsForeignHandles(t *testing.T) {
	ds, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = ds.Open(context.Background(), "../secret.png")
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, ds.Delete(context.Background(), "../secret.png"), ErrInvalidHandle)
}

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.types[*input.Key] = *input.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreLifecycle(t *testing.T) {
	mock := newMockS3()
	st := &S3Store{client: mock, bucket: "images", prefix: "profile/"}
	ctx := context.Background()

	h, err := st.Save(ctx, pngBytes)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, mock.objects["profile/"+h])
	assert.Equal(t, "image/png", mock.types["profile/"+h])

	rc, err := st.Open(ctx, h)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	require.NoError(t, st.Delete(ctx, h))
	_, err = st.Open(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	st := &S3Store{client: mock, bucket: "images"}

	_, err := st.Save(context.Background(), pngBytes)
	assert.ErrorIs(t, err, mock.putErr)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "us-east-1"})
	assert.Error(t, err)

	st, err := NewS3Store(S3Config{Bucket: "images", Region: "us-east-1", Endpoint: "http://localhost:9000"})
	require.NoError(t, err)
	assert.NotNil(t, st.client)
}
