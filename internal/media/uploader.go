package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/logger"
)

const (
	MaxImageSize = 5 * 1024 * 1024 // 5MB
	URLPrefix    = "/uploads"
)

var (
	// ErrInvalidImage is returned for malformed or unsupported data URIs
	ErrInvalidImage = errors.New("invalid image data")
	// ErrImageTooLarge is returned when the decoded image exceeds MaxImageSize
	ErrImageTooLarge = errors.New("image exceeds 5MB limit")
)

// Uploader stores an image and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, dataURI string) (string, error)
}

var imageExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// IsDataURI reports whether s carries inline image bytes rather than a URL.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// LocalUploader writes images under Dir/images and serves them from
// /uploads/images.
type LocalUploader struct {
	Dir string
}

// NewLocalUploader creates an uploader rooted at dir
func NewLocalUploader(dir string) *LocalUploader {
	if dir == "" {
		dir = "./uploads"
	}
	return &LocalUploader{Dir: dir}
}

// Upload decodes a base64 data URI and saves it with a unique filename.
func (u *LocalUploader) Upload(ctx context.Context, dataURI string) (string, error) {
	mime, data, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}

	ext, ok := imageExts[mime]
	if !ok {
		return "", fmt.Errorf("%w: unsupported type %s", ErrInvalidImage, mime)
	}
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}

	// Create upload directory if not exists
	uploadPath := filepath.Join(u.Dir, "images")
	if err := os.MkdirAll(uploadPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Generate unique filename
	filename := fmt.Sprintf("%s-%d%s", uuid.New().String(), time.Now().Unix(), ext)
	if err := os.WriteFile(filepath.Join(uploadPath, filename), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	l := logger.Ctx(ctx)
	l.Debug().Str("file", filename).Int("size", len(data)).Msg("image stored")

	return fmt.Sprintf("%s/images/%s", URLPrefix, filename), nil
}

// Resolve maps a served type directory and filename to a path on disk.
// It rejects anything that would escape Dir.
func (u *LocalUploader) Resolve(fileType, filename string) (string, bool) {
	if fileType != "images" {
		return "", false
	}
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", false
	}
	return filepath.Join(u.Dir, fileType, filename), true
}

// decodeDataURI splits "data:<mime>;base64,<payload>".
func decodeDataURI(s string) (string, []byte, error) {
	if !IsDataURI(s) {
		return "", nil, ErrInvalidImage
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, ErrInvalidImage
	}
	mime, enc, _ := strings.Cut(header, ";")
	if enc != "base64" {
		return "", nil, fmt.Errorf("%w: only base64 data URIs are supported", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return strings.ToLower(mime), data, nil
}

// ContentType returns content type based on file extension
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
