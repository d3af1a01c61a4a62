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
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/metrics"
)

type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &Object{Body: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data)), ContentType: "image/jpeg"}, nil
}

func (m *memStorage) GetURL(key string) string { return "https://cdn.example.com/" + key }

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) EnsureBucket(context.Context) error { return nil }

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 123456789, time.UTC)
}

func TestTimestampedName(t *testing.T) {
	assert.Equal(t, "20240309_140507_123456_chest.jpg", timestampedName(fixedNow(), "chest.jpg"))
	assert.Equal(t, "20240309_140507_123456_chest.jpg", timestampedName(fixedNow(), "../../etc/chest.jpg"))
	assert.Equal(t, "20240309_140507_123456_x.png", timestampedName(fixedNow(), `C:\scans\x.png`))
	assert.Equal(t, "20240309_140507_123456_upload", timestampedName(fixedNow(), ""))
}

func TestUploadRemote(t *testing.T) {
	remote := newMemStorage()
	m, err := metrics.New()
	require.NoError(t, err)
	store := NewImageStore(remote, NewLocalStorage(t.TempDir()), "", m)
	store.now = fixedNow

	res, err := store.Upload(context.Background(), []byte("img"), "chest.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, LocationRemote, res.Location)
	assert.Equal(t, "predictions/20240309_140507_123456_chest.jpg", res.Reference)
	assert.Equal(t, "https://cdn.example.com/predictions/20240309_140507_123456_chest.jpg", res.URL)
	assert.False(t, res.Fallback())
	assert.Equal(t, res.URL, store.ImageURL(res.Reference, res.URL))

	obj, err := store.Open(context.Background(), res.Reference, res.URL)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

func TestUploadRemoteKeepsExistingObject(t *testing.T) {
	remote := newMemStorage()
	remote.objects["predictions/20240309_140507_123456_chest.jpg"] = []byte("first")
	store := NewImageStore(remote, NewLocalStorage(t.TempDir()), "", nil)
	store.now = fixedNow

	res, err := store.Upload(context.Background(), []byte("second"), "chest.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, LocationRemote, res.Location)
	assert.NotEqual(t, "predictions/20240309_140507_123456_chest.jpg", res.Reference)
	assert.True(t, strings.HasSuffix(res.Reference, "_20240309_140507_123456_chest.jpg"))
	assert.Equal(t, []byte("first"), remote.objects["predictions/20240309_140507_123456_chest.jpg"])
	assert.Equal(t, []byte("second"), remote.objects[res.Reference])
}

func TestUploadFallsBackToLocal(t *testing.T) {
	remote := newMemStorage()
	remote.uploadErr = errors.New("bucket unreachable")
	dir := t.TempDir()
	m, err := metrics.New()
	require.NoError(t, err)
	store := NewImageStore(remote, NewLocalStorage(dir), "scans", m)
	store.now = fixedNow

	res, err := store.Upload(context.Background(), []byte("img"), "chest.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, LocationLocal, res.Location)
	assert.True(t, res.Fallback())
	assert.EqualError(t, res.FallbackErr, "bucket unreachable")
	assert.Equal(t, "20240309_140507_123456_chest.jpg", res.Reference)
	assert.Empty(t, res.URL)
	assert.Equal(t, "/predictions/image/20240309_140507_123456_chest.jpg", store.ImageURL(res.Reference, res.URL))

	data, err := os.ReadFile(filepath.Join(dir, res.Reference))
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	out, err := testutil.GatherAndCount(m.Registry(), "lungscan_storage_uploads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, out)
}

func TestUploadLocalOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	store := NewImageStore(nil, NewLocalStorage(dir), "", nil)
	store.now = fixedNow
	assert.False(t, store.RemoteEnabled())

	res, err := store.Upload(context.Background(), []byte("img"), "a.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, LocationLocal, res.Location)
	assert.False(t, res.Fallback())

	obj, err := store.Open(context.Background(), res.Reference, "")
	require.NoError(t, err)
	defer obj.Body.Close()
	assert.Equal(t, int64(3), obj.Size)
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestOpenMissing(t *testing.T) {
	store := NewImageStore(newMemStorage(), NewLocalStorage(t.TempDir()), "", nil)

	_, err := store.Open(context.Background(), "nope.jpg", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Open(context.Background(), "predictions/nope.jpg", "https://cdn.example.com/predictions/nope.jpg")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Open(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.OpenLocal("../secret")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	localOnly := NewImageStore(nil, NewLocalStorage(t.TempDir()), "", nil)
	_, err = localOnly.Open(context.Background(), "k", "https://cdn.example.com/k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://abc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType(""))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("http://localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/bucket/"))
	assert.Equal(t, "abc.r2.cloudflarestorage.com", normalizeEndpoint("https://abc.r2.cloudflarestorage.com"))
}

func TestNewStorageSelectsProvider(t *testing.T) {
	s, err := NewStorage(configFor("minio", "localhost:9000"))
	require.NoError(t, err)
	assert.IsType(t, &MinIOStorage{}, s)
	assert.Equal(t, "http://localhost:9000/xrays/k.jpg", s.GetURL("k.jpg"))

	s, err = NewStorage(configFor("", "http://localhost:9000"))
	require.NoError(t, err)
	assert.IsType(t, &S3Storage{}, s)
	assert.Equal(t, "http://localhost:9000/xrays/k.jpg", s.GetURL("k.jpg"))
}
