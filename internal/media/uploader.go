package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"chitchat/internal/models"
	"chitchat/internal/observability"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const DefaultMaxUploadSizeMB = 5

// Upload describes a stored image.
type Upload struct {
	URL    string `json:"url"`
	Key    string `json:"key"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type UploadInput struct {
	UserID      uint
	ContentType string
	Content     []byte
}

type Uploader struct {
	store    ObjectStore
	maxBytes int64
}

// NewUploader returns an uploader writing to store. A nil store makes every
// upload fail with models.ErrStorageDisabled.
func NewUploader(store ObjectStore, maxUploadSizeMB int) *Uploader {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = DefaultMaxUploadSizeMB
	}
	return &Uploader{store: store, maxBytes: int64(maxUploadSizeMB) * 1024 * 1024}
}

// Enabled reports whether uploads have somewhere to go.
func (u *Uploader) Enabled() bool {
	return u != nil && u.store != nil
}

// MaxBytes is the accepted upload size.
func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// Upload checks that the content is a supported image and stores it under
// posts/<userID>/<uuid>.<ext>.
func (u *Uploader) Upload(ctx context.Context, in UploadInput) (*Upload, error) {
	if !u.Enabled() {
		return nil, models.ErrStorageDisabled
	}
	if len(in.Content) == 0 {
		observability.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > u.maxBytes {
		observability.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", u.maxBytes/(1024*1024)))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		observability.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError("Invalid image file")
	}
	ext, mimeType, ok := formatInfo(format)
	if !ok {
		observability.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && provided != mimeType {
		observability.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError("Image content type mismatch")
	}

	key := fmt.Sprintf("posts/%d/%s.%s", in.UserID, uuid.NewString(), ext)
	if err := u.store.Put(ctx, key, in.Content, mimeType); err != nil {
		observability.MediaUploads.WithLabelValues("error").Inc()
		return nil, models.NewInternalError(err)
	}
	observability.MediaUploads.WithLabelValues("stored").Inc()

	return &Upload{URL: u.store.URL(key), Key: key, Width: cfg.Width, Height: cfg.Height}, nil
}

func formatInfo(format string) (ext, mimeType string, ok bool) {
	switch format {
	case "jpeg":
		return "jpg", "image/jpeg", true
	case "png":
		return "png", "image/png", true
	case "gif":
		return "gif", "image/gif", true
	case "webp":
		return "webp", "image/webp", true
	}
	return "", "", false
}

func normalizeContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" {
		return "image/jpeg"
	}
	// Browsers often send a generic type for drag-and-drop uploads.
	if mediaType == "application/octet-stream" {
		return ""
	}
	return mediaType
}

