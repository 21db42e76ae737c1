// Package archive keeps a copy of every exported invoice document in object
// storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Archive interface {
	// Put stores data under {storeID}/{fileName} and returns the object key.
	Put(ctx context.Context, storeID string, fileName string, data []byte) (string, error)
	// RemoveBill deletes every object archived for storeID.
	RemoveBill(ctx context.Context, storeID string) error
}

type Noop struct{}

func (Noop) Put(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}

func (Noop) RemoveBill(_ context.Context, _ string) error {
	return nil
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	Region    string
}

type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to the endpoint and creates the bucket when it
// does not exist yet.
func NewMinioArchive(ctx context.Context, cfg MinioConfig) (*MinioArchive, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	a := &MinioArchive{client: client, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *MinioArchive) ensureBucket(ctx context.Context, region string) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	slog.Info("archive bucket created", "bucket", a.bucket)
	return nil
}

func ObjectKey(storeID string, fileName string) string {
	return path.Join(storeID, fileName)
}

func (a *MinioArchive) Put(ctx context.Context, storeID string, fileName string, data []byte) (string, error) {
	key := ObjectKey(storeID, fileName)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func (a *MinioArchive) RemoveBill(ctx context.Context, storeID string) error {
	prefix := storeID + "/"
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", obj.Key, err)
		}
	}
	return nil
}

// PresignedURL returns a time-limited download URL for an archived object.
func (a *MinioArchive) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
