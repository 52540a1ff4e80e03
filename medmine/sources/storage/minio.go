package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"medmine/medmine/config"
	"medmine/medmine/utils/logging"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClient archives raw uploads next to the parsed batches.
type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(ctx context.Context, cfg config.Config) (*MinIOClient, error) {
	client, err := minio.New(
		cfg.MinIOEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: false,
		},
	)
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.MinIOBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	logging.AppLogger.Info("minio ready", zap.String("endpoint", cfg.MinIOEndpoint), zap.String("bucket", cfg.MinIOBucket))
	return &MinIOClient{client: client, bucket: cfg.MinIOBucket}, nil
}

// UploadKey is the object key of one raw upload.
func UploadKey(batchID uuid.UUID, filename string, at time.Time) string {
	return path.Join("uploads", at.UTC().Format("2006/01/02"), batchID.String(), path.Base(filename))
}

// ArchiveUpload stores the raw bytes of an upload and returns the object key.
func (m *MinIOClient) ArchiveUpload(ctx context.Context, batchID uuid.UUID, filename, contentType string, data []byte) (string, error) {
	key := UploadKey(batchID, filename, time.Now())
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"batch-id": batchID.String(), "filename": filename},
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return key, nil
}

// GetUpload reads back an archived upload.
func (m *MinIOClient) GetUpload(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
