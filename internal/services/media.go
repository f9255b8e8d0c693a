package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/wellspring/apiserver/internal/storage"
	"github.com/wellspring/apiserver/internal/store"
	"github.com/wellspring/apiserver/types"
)

const (
	mediaKeyPrefix      = "sessions"
	defaultMaxMediaSize = 10 << 20
	mediaRoutePrefix    = "/api/media/"
)

var (
	// ErrStorageDisabled is returned when no object storage backend is
	// configured.
	ErrStorageDisabled = errors.New("object storage is not configured")

	// ErrMediaTooLarge is returned when an upload exceeds the size limit.
	ErrMediaTooLarge = errors.New("uploaded file too large")
)

var allowedMediaTypes = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"application/json": ".json",
}

// MediaService stores session images and scripts in object storage.
type MediaService struct {
	storage       *storage.Storage
	publicBaseURL string
	maxSize       int64
}

// NewMediaService constructs a MediaService. A nil storage disables every
// operation with ErrStorageDisabled.
func NewMediaService(objects *storage.Storage, publicBaseURL string, maxSize int64) *MediaService {
	if maxSize <= 0 {
		maxSize = defaultMaxMediaSize
	}
	return &MediaService{
		storage:       objects,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		maxSize:       maxSize,
	}
}

// Enabled reports whether a storage backend is configured.
func (s *MediaService) Enabled() bool {
	return s.storage != nil
}

// MaxSize returns the upload size limit in bytes.
func (s *MediaService) MaxSize() int64 {
	return s.maxSize
}

// Upload validates and stores a file on behalf of ownerID.
func (s *MediaService) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (types.Media, error) {
	if !s.Enabled() {
		return types.Media{}, ErrStorageDisabled
	}

	data, err := readFileLimited(r, s.maxSize)
	if err != nil {
		return types.Media{}, err
	}
	if len(data) == 0 {
		return types.Media{}, types.NewValidationError("file", "file is required")
	}

	contentType := detectMediaType(filename, data)
	ext, ok := allowedMediaTypes[contentType]
	if !ok {
		return types.Media{}, types.NewValidationError("file", "file must be a JPEG, PNG, GIF or WebP image or a JSON document")
	}
	if contentType == "application/json" && !json.Valid(data) {
		return types.Media{}, types.NewValidationError("file", "file is not valid JSON")
	}

	hash := sha256.Sum256(data)
	key := path.Join(mediaKeyPrefix, ownerID, uuid.NewString()+ext)
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return types.Media{}, fmt.Errorf("store media: %w", err)
	}

	return types.Media{
		Key:         key,
		URL:         s.URL(key),
		SHA256:      hex.EncodeToString(hash[:]),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Open returns a reader for the object at key and its content type.
func (s *MediaService) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !s.Enabled() {
		return nil, "", ErrStorageDisabled
	}
	key, ok := cleanMediaKey(key)
	if !ok {
		return nil, "", store.ErrNotFound
	}
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", err
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return reader, contentType, nil
}

// Delete removes an object uploaded by ownerID. Keys outside the owner's
// prefix and keys that do not exist are reported as not found.
func (s *MediaService) Delete(ctx context.Context, ownerID, key string) error {
	if !s.Enabled() {
		return ErrStorageDisabled
	}
	key, ok := cleanMediaKey(key)
	if !ok || !strings.HasPrefix(key, path.Join(mediaKeyPrefix, ownerID)+"/") {
		return store.ErrNotFound
	}

	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("stat media: %w", err)
	}
	_ = reader.Close()

	if err := s.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// URL returns the client-facing address of key.
func (s *MediaService) URL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return mediaRoutePrefix + key
}

func cleanMediaKey(key string) (string, bool) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" || path.Clean(key) != key || !strings.HasPrefix(key, mediaKeyPrefix+"/") {
		return "", false
	}
	return key, true
}

func detectMediaType(filename string, data []byte) string {
	if strings.EqualFold(path.Ext(filename), ".json") {
		return "application/json"
	}
	contentType, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return ""
	}
	return contentType
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrMediaTooLarge
	}
	return data, nil
}
