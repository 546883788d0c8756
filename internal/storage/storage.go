// Package storage persists uploaded files to the local disk or an S3
// compatible bucket.
package storage

import (
	"context"
	"fmt"
	"strings"

	"folio/internal/config"
)

// ObjectStore is the blob store used for avatars.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix,
	// except the keys listed in keep.
	DeletePrefix(ctx context.Context, prefix string, keep ...string) error
	PublicURL(key string) string
}

// AvatarPrefix is the key prefix holding a user's avatar files.
func AvatarPrefix(userID uint) string {
	return fmt.Sprintf("avatars/%d/", userID)
}

// AvatarKey is the key of a user's current avatar.
func AvatarKey(userID uint) string {
	return AvatarPrefix(userID) + "avatar.webp"
}

// New returns the store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.StorageDriver {
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			PublicURL:    cfg.S3PublicURL,
		})
	case "", "local":
		return NewLocalStore(cfg.UploadDir, strings.TrimRight(cfg.PublicBaseURL, "/")+"/uploads")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
