// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ga-tools/poliops-transfer/internal/config"
	"go.uber.org/zap"
)

const (
	// Max retries for S3 operations
	maxS3Retries = 5
	// Initial retry delay
	initialRetryDelay = 1 * time.Second
	// Archive folders are per run day
	archiveDateLayout = "2006-01-02"
)

// uploadAPI is the part of manager.Uploader we use.
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Uploader archives produced files to S3.
type Uploader struct {
	client     uploadAPI
	bucket     string
	prefix     string
	retryDelay time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewUploader creates an uploader for the configured bucket. Static keys from the
// [s3] section are used when present, otherwise the default credential chain.
func NewUploader(ctx context.Context, cfg config.S3, logger *zap.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Support custom endpoint via environment variable (for LocalStack)
	endpoint := os.Getenv("AWS_ENDPOINT_URL")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	if endpoint != "" {
		logger.Info("Using custom S3 endpoint", zap.String("endpoint", endpoint))
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 3
	})

	return newUploader(uploader, cfg.Bucket, cfg.Prefix, logger), nil
}

func newUploader(client uploadAPI, bucket, prefix string, logger *zap.Logger) *Uploader {
	return &Uploader{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		retryDelay: initialRetryDelay,
		now:        time.Now,
		logger:     logger,
	}
}

// ArchiveKey returns {prefix}/{yyyy-mm-dd}/{name}. name is a slash-separated
// path that must be unique within one run.
func (u *Uploader) ArchiveKey(name string) string {
	return path.Join(u.prefix, u.now().Format(archiveDateLayout), name)
}

// Archive uploads a local file under the archive key for name.
func (u *Uploader) Archive(ctx context.Context, localPath, name string) error {
	return u.UploadFileWithRetry(ctx, localPath, u.ArchiveKey(name))
}

// UploadFile uploads a file to S3; the manager switches to multipart for large files.
func (u *Uploader) UploadFile(ctx context.Context, localPath, s3Key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	u.logger.Debug("Uploading file to S3",
		zap.String("file", localPath),
		zap.String("bucket", u.bucket),
		zap.String("s3_key", s3Key),
		zap.Int64("size", fileInfo.Size()))

	_, err = u.client.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	u.logger.Info("File archived to S3",
		zap.String("s3_key", s3Key),
		zap.Int64("size", fileInfo.Size()))

	return nil
}

// UploadFileWithRetry uploads a file, backing off exponentially between attempts.
func (u *Uploader) UploadFileWithRetry(ctx context.Context, localPath, s3Key string) error {
	var lastErr error
	delay := u.retryDelay

	for attempt := 1; attempt <= maxS3Retries; attempt++ {
		err := u.UploadFile(ctx, localPath, s3Key)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < maxS3Retries {
			u.logger.Warn("Upload failed, retrying",
				zap.String("file", localPath),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxS3Retries),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxS3Retries, lastErr)
}
