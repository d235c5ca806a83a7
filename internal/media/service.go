// Package media stores uploaded post images in S3-compatible object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"gazette/api/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Service uploads images to a MinIO bucket and hands back public URLs.
type Service struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// New connects to MinIO and ensures the bucket exists. baseURL is the
// public prefix served to readers; when empty the MinIO endpoint is used.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, baseURL string) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	if baseURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}

	return &Service{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Upload stores an image and returns its public URL. The object name is
// random; the original filename only contributes its extension.
func (s *Service) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	ext, ok := allowedContentTypes[normalizeContentType(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	if e := strings.ToLower(path.Ext(filename)); e != "" {
		ext = e
	}

	objectName := util.NewID("img") + ext
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: normalizeContentType(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return s.baseURL + "/" + objectName, nil
}

// Remove deletes an uploaded object by its public URL. Unknown URLs are
// ignored so callers can pass through externally hosted images.
func (s *Service) Remove(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return nil
	}
	objectName := strings.TrimPrefix(url, s.baseURL+"/")
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func normalizeContentType(ct string) string {
	parsed, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return parsed
}
