package photos

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/logging"
)

// MinioOptions configures the object store connection.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinioStore keeps uploaded photos as objects in a single bucket, keyed by handle.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinioStore connects to the object store and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, opts MinioOptions, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, logging.NewOperationError("photos.minio_connect", "", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, logging.NewOperationError("photos.bucket_exists", "", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, logging.NewOperationError("photos.make_bucket", "", err)
		}
		logger.Info("created photo bucket", zap.String("bucket", opts.Bucket))
	}

	return &MinioStore{client: client, bucket: opts.Bucket, logger: logger.Named("photo_store")}, nil
}

// Put uploads the photo under a fresh handle.
func (s *MinioStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	handle := uuid.NewString()
	_, err := s.client.PutObject(ctx, s.bucket, handle, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		wrapped := logging.NewOperationError("photos.put", handle, err)
		s.logger.Error("failed to store photo", zap.Error(wrapped))
		return "", wrapped
	}
	return handle, nil
}

// Resolve downloads the object named by handle.
func (s *MinioStore) Resolve(ctx context.Context, handle string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(handle, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(handle, err)
	}
	return data, nil
}

func (s *MinioStore) mapErr(handle string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	wrapped := logging.NewOperationError("photos.resolve", handle, err)
	s.logger.Error("failed to resolve photo", zap.Error(wrapped))
	return wrapped
}
