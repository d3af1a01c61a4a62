package storage

import (
	"strings"

	"github.com/timmy/lungscan/internal/config"
)

// NewStorage creates the remote ObjectStorage selected by cfg.Type,
// auto-detecting the S3 flavour from the endpoint when no type is set.
func NewStorage(cfg config.StorageConfig) (ObjectStorage, error) {
	storageType := StorageType(strings.ToLower(cfg.Type))
	if storageType == "" {
		storageType = detectStorageType(cfg.Endpoint)
	}

	if storageType == StorageTypeMinIO {
		return NewMinIOStorage(&MinIOConfig{
			Endpoint:  normalizeEndpoint(cfg.Endpoint),
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			PublicURL: cfg.PublicURL,
		})
	}

	return NewS3Storage(&S3Config{
		Type:      storageType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "":
		return StorageTypeS3
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
