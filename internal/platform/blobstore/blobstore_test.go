package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr error
	}{
		{"report.pdf", "application/pdf", nil},
		{"scan.JPG", "image/jpeg", nil},
		{"scan.jpeg", "image/jpeg", nil},
		{"xray.png", "image/png", nil},
		{"notes.txt", "", ErrUnsupportedFileType},
		{"archive.pdf.exe", "", ErrUnsupportedFileType},
		{"noext", "", ErrUnsupportedFileType},
		{"", "", ErrMissingFileName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ContentTypeFor(tt.name)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAllowedExtensions(t *testing.T) {
	got := strings.Join(AllowedExtensions(), ",")
	if got != ".jpeg,.jpg,.pdf,.png" {
		t.Errorf("unexpected extensions %s", got)
	}
}

func TestInMemoryBlobStore_UploadDownload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "%PDF-1.4 fake"

	meta, err := store.Upload(context.Background(), "diagnostics/abc", "Blood Test.PDF", strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(meta.Key, "diagnostics/abc/") || !strings.HasSuffix(meta.Key, ".pdf") {
		t.Errorf("unexpected key %q", meta.Key)
	}
	if meta.FileName != "Blood Test.PDF" || meta.ContentType != "application/pdf" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), meta.Size)
	}
	if want := fmt.Sprintf("%x", sha256.Sum256([]byte(content))); meta.Hash != want {
		t.Errorf("hash mismatch")
	}

	rc, got, err := store.Download(context.Background(), meta.Key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != content || got.FileName != meta.FileName {
		t.Errorf("downloaded %q / %+v", body, got)
	}
}

func TestInMemoryBlobStore_Rejects(t *testing.T) {
	store := NewInMemoryBlobStore()
	if _, err := store.Upload(context.Background(), "", "virus.exe", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}
	big := strings.NewReader(strings.Repeat("a", MaxFileSize+1))
	if _, err := store.Upload(context.Background(), "", "big.png", big); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("rejected uploads must not be stored")
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta, err := store.Upload(context.Background(), "", "a.png", strings.NewReader("png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(context.Background(), meta.Key); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(context.Background(), meta.Key); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if _, _, err := store.Download(context.Background(), meta.Key); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_Concurrent(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Upload(context.Background(), "p", fmt.Sprintf("f%d.jpg", i), strings.NewReader("jpg")); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("expected 20 blobs, got %d", store.Len())
	}
}

func TestUserMeta(t *testing.T) {
	m := map[string]string{"Filename": "a.pdf", "X-Amz-Meta-Sha256": "abc"}
	if userMeta(m, metaFileName) != "a.pdf" || userMeta(m, metaHash) != "abc" {
		t.Errorf("lookup failed for %v", m)
	}
	if userMeta(m, "missing") != "" {
		t.Error("missing key should be empty")
	}
}
