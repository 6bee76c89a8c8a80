// Package blobstore stores uploaded files such as diagnostic attachments.
// It defines the BlobStore interface, a MinIO/S3 implementation and an
// in-memory implementation for tests and development.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound        = errors.New("blob not found")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUnsupportedFileType = errors.New("file type is not allowed")
	ErrMissingFileName     = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// allowedExtensions maps the accepted file extensions to the content type
// the blob is served with. Only the extension is checked, not the content.
var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// AllowedExtensions lists the accepted extensions in order.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ContentTypeFor validates fileName's extension and returns its content type.
func ContentTypeFor(fileName string) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", ErrMissingFileName
	}
	ext := strings.ToLower(path.Ext(fileName))
	ct, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q, expected one of %s", ErrUnsupportedFileType, ext, strings.Join(AllowedExtensions(), ", "))
	}
	return ct, nil
}

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	// Upload stores content under a new key beneath prefix.
	Upload(ctx context.Context, prefix, fileName string, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, key string) error
}

// prepare validates the upload, buffers the content and fills in the
// metadata shared by every backend.
func prepare(prefix, fileName string, content io.Reader) (*BlobMetadata, []byte, error) {
	ct, err := ContentTypeFor(fileName)
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	key := uuid.New().String() + strings.ToLower(path.Ext(fileName))
	if prefix != "" {
		key = strings.Trim(prefix, "/") + "/" + key
	}
	return &BlobMetadata{
		Key:         key,
		FileName:    path.Base(fileName),
		ContentType: ct,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", h),
		CreatedAt:   time.Now().UTC(),
	}, data, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, prefix, fileName string, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(prefix, fileName, content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[meta.Key] = &storedBlob{metadata: *meta, content: data}
	s.mu.Unlock()
	return meta, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len reports how many blobs are stored.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
