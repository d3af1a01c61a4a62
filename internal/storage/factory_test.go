package storage

import "github.com/timmy/lungscan/internal/config"

func configFor(storageType, endpoint string) config.StorageConfig {
	return config.StorageConfig{
		Type:      storageType,
		Endpoint:  endpoint,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "xrays",
	}
}
