package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lungscan/internal/domain"
	"github.com/timmy/lungscan/internal/logger"
	"github.com/timmy/lungscan/internal/metrics"
)

// Location tells where an uploaded image ended up.
type Location string

const (
	LocationRemote Location = "remote"
	LocationLocal  Location = "local"
)

// UploadResult describes a stored image. FallbackErr is set when a remote
// upload failed and the image was saved locally instead.
type UploadResult struct {
	Location    Location
	Reference   string // object key or local filename
	URL         string // public URL, remote only
	FallbackErr error
}

// Fallback reports whether the remote store was configured but not used.
func (r UploadResult) Fallback() bool {
	return r.FallbackErr != nil
}

// ImageStore persists uploaded X-rays remotely when configured, locally otherwise.
type ImageStore struct {
	remote  ObjectStorage
	local   *LocalStorage
	folder  string
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewImageStore creates an ImageStore. remote may be nil for local-only storage.
func NewImageStore(remote ObjectStorage, local *LocalStorage, folder string, m *metrics.Metrics) *ImageStore {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = "predictions"
	}
	return &ImageStore{
		remote:  remote,
		local:   local,
		folder:  folder,
		metrics: m,
		now:     time.Now,
	}
}

// RemoteEnabled reports whether uploads go to object storage first.
func (s *ImageStore) RemoteEnabled() bool {
	return s.remote != nil
}

// Upload stores data under a timestamped name derived from filename. A name
// already taken in the bucket gets a random prefix.
// A remote failure is logged and degrades to local storage; only a local
// write failure is returned as an error.
func (s *ImageStore) Upload(ctx context.Context, data []byte, filename, contentType string) (UploadResult, error) {
	name := timestampedName(s.now(), filename)

	var remoteErr error
	if s.remote != nil {
		key := s.folder + "/" + name
		// Objects are never overwritten.
		if exists, err := s.remote.Exists(ctx, key); err == nil && exists {
			name = uuid.NewString()[:8] + "_" + name
			key = s.folder + "/" + name
		}
		remoteErr = s.remote.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
		if remoteErr == nil {
			s.metrics.RecordUpload(string(LocationRemote), false)
			return UploadResult{
				Location:  LocationRemote,
				Reference: key,
				URL:       s.remote.GetURL(key),
			}, nil
		}
		logger.FromContext(ctx).WithError(remoteErr).Warnf("Remote upload of %s failed, saving locally", key)
	}

	if err := s.local.Save(name, data); err != nil {
		return UploadResult{}, err
	}
	s.metrics.RecordUpload(string(LocationLocal), remoteErr != nil)
	return UploadResult{
		Location:    LocationLocal,
		Reference:   name,
		FallbackErr: remoteErr,
	}, nil
}

// ImageURL returns url when the image is remote, otherwise the API path serving the local file.
func (s *ImageStore) ImageURL(reference, url string) string {
	if url != "" {
		return url
	}
	return "/predictions/image/" + reference
}

// Open streams a stored image. A non-empty url marks a remote reference.
func (s *ImageStore) Open(ctx context.Context, reference, url string) (*Object, error) {
	if reference == "" {
		return nil, fmt.Errorf("empty image reference: %w", domain.ErrNotFound)
	}
	if url != "" {
		if s.remote == nil {
			return nil, fmt.Errorf("remote image %s without object storage: %w", reference, domain.ErrNotFound)
		}
		return s.remote.Download(ctx, reference)
	}
	return s.local.Open(reference)
}

// OpenLocal streams a file from the upload directory.
func (s *ImageStore) OpenLocal(filename string) (*Object, error) {
	return s.local.Open(filename)
}

// timestampedName prefixes the base of filename with a microsecond timestamp.
func timestampedName(t time.Time, filename string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, "\\", "/")))
	if base == "/" || base == "." {
		base = "upload"
	}
	return fmt.Sprintf("%s_%06d_%s", t.Format("20060102_150405"), t.Nanosecond()/1000, base)
}
