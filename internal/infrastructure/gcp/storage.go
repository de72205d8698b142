package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/ngoclaw/aichat/internal/domain/service"
)

// BucketStore implements service.MediaStore on a Cloud Storage bucket.
type BucketStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

var _ service.MediaStore = (*BucketStore)(nil)

// NewBucketStore opens a storage client. baseURL overrides the public
// https://storage.googleapis.com/<bucket> prefix, e.g. for a CDN.
func NewBucketStore(ctx context.Context, bucket, baseURL, credentialsFile string) (*BucketStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name required")
	}
	c, err := storage.NewClient(ctx, ClientOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &BucketStore{client: c, bucket: bucket, baseURL: baseURL}, nil
}

// Put uploads data under key and returns its public URL.
func (s *BucketStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return publicURL(s.baseURL, s.bucket, key), nil
}

// Close releases the client.
func (s *BucketStore) Close() error {
	return s.client.Close()
}

func publicURL(baseURL, bucket, key string) string {
	key = strings.TrimLeft(key, "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "/") {
		return strings.TrimRight(baseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
