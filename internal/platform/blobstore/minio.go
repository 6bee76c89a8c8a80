package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

const (
	metaFileName = "filename"
	metaHash     = "sha256"
)

// MinioBlobStore keeps blobs in a MinIO/S3 bucket. Original file name and
// content hash travel as object user metadata.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore connects to the endpoint and creates the bucket when it
// does not exist yet.
func NewMinioBlobStore(ctx context.Context, cfg MinioConfig) (*MinioBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioBlobStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioBlobStore) Upload(ctx context.Context, prefix, fileName string, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(prefix, fileName, content)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, meta.Key, bytes.NewReader(data), meta.Size, minio.PutObjectOptions{
		ContentType: meta.ContentType,
		UserMetadata: map[string]string{
			metaFileName: meta.FileName,
			metaHash:     meta.Hash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s/%s: %w", s.bucket, meta.Key, err)
	}
	return meta, nil
}

func (s *MinioBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, s.mapErr(key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, s.mapErr(key, err)
	}
	meta := &BlobMetadata{
		Key:         info.Key,
		FileName:    userMeta(info.UserMetadata, metaFileName),
		ContentType: info.ContentType,
		Size:        info.Size,
		Hash:        userMeta(info.UserMetadata, metaHash),
		CreatedAt:   info.LastModified,
	}
	return obj, meta, nil
}

func (s *MinioBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return s.mapErr(key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.mapErr(key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *MinioBlobStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinioBlobStore) mapErr(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", key, ErrBlobNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("object %s/%s: %w", s.bucket, key, err)
}

// userMeta reads a user metadata value. Servers differ in how they case the
// header-derived keys.
func userMeta(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}
