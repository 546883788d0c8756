package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"net/http"
	"time"

	"folio/internal/events"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/observability"
	"folio/internal/repository"
	"folio/internal/storage"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultAvatarMaxBytes = 2 * 1024 * 1024
	AvatarSize            = 512
	AvatarWebPQuality     = 80
	avatarContentType     = "image/webp"
)

var allowedAvatarTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

// AvatarService stores one square WebP avatar per user.
type AvatarService struct {
	users    repository.UserRepository
	store    storage.ObjectStore
	events   *events.Dispatcher
	maxBytes int64
	now      func() time.Time
}

func NewAvatarService(
	users repository.UserRepository,
	store storage.ObjectStore,
	dispatcher *events.Dispatcher,
	maxBytes int64,
) *AvatarService {
	if maxBytes <= 0 {
		maxBytes = DefaultAvatarMaxBytes
	}
	return &AvatarService{users: users, store: store, events: dispatcher, maxBytes: maxBytes, now: time.Now}
}

// MaxBytes is the largest accepted upload.
func (s *AvatarService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload replaces the user's avatar with content and returns the new,
// cache-busted URL.
func (s *AvatarService) Upload(ctx context.Context, userID uint, content []byte) (string, error) {
	url, err := s.upload(ctx, userID, content)
	result := "ok"
	if err != nil {
		result = models.ErrorCode(err)
		if result == "" {
			result = models.CodeInternal
		}
	}
	observability.AvatarUploads.WithLabelValues(result).Inc()
	return url, err
}

func (s *AvatarService) upload(ctx context.Context, userID uint, content []byte) (string, error) {
	if len(content) == 0 {
		return "", models.NewValidationError("file is required")
	}
	if int64(len(content)) > s.maxBytes {
		return "", models.NewValidationError(fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	detected := http.DetectContentType(content)
	wantFormat, ok := allowedAvatarTypes[detected]
	if !ok {
		return "", models.NewValidationError("file must be a JPEG, PNG or WebP image")
	}
	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil || format != wantFormat {
		return "", models.NewValidationError("file is not a valid image")
	}

	encoded, err := encodeAvatar(decoded)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	// The previous avatar stays in place until the new one is stored.
	key := storage.AvatarKey(userID)
	if err := s.store.Put(ctx, key, avatarContentType, encoded); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := s.store.DeletePrefix(ctx, storage.AvatarPrefix(userID), key); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to clear stale avatar files",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}

	url := fmt.Sprintf("%s?v=%d", s.store.PublicURL(key), s.now().Unix())
	if err := s.users.UpdateAvatar(ctx, userID, url); err != nil {
		return "", err
	}

	s.events.Dispatch(ctx, events.Event{
		Name:       events.AvatarUploaded,
		UserID:     userID,
		Properties: map[string]any{"source_format": format, "bytes": len(content)},
	})
	return url, nil
}

// Remove deletes the stored avatar and clears the URL.
func (s *AvatarService) Remove(ctx context.Context, userID uint) error {
	if err := s.store.DeletePrefix(ctx, storage.AvatarPrefix(userID)); err != nil {
		return models.NewInternalError(err)
	}
	return s.users.UpdateAvatar(ctx, userID, "")
}

// encodeAvatar center-crops src to a square, scales it to AvatarSize and
// encodes it as WebP.
func encodeAvatar(src image.Image) ([]byte, error) {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	crop := image.Rect(0, 0, side, side).Add(image.Pt(
		b.Min.X+(b.Dx()-side)/2,
		b.Min.Y+(b.Dy()-side)/2,
	))

	size := AvatarSize
	if side < size {
		size = side
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, xdraw.Over, nil)

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, dst, &webp.Options{Quality: AvatarWebPQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
