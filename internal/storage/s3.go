package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// KeyPrefix is where every chart lands in the bucket.
const KeyPrefix = "graficas/"

type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Store struct {
	uploader uploadAPI
	bucket   string
	logger   zerolog.Logger
}

// NewS3Store builds a store from static credentials when both keys are set,
// and from the default AWS credential chain otherwise.
func NewS3Store(ctx context.Context, opts Options, logger zerolog.Logger) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Store(manager.NewUploader(s3.NewFromConfig(awsCfg)), opts.Bucket, logger), nil
}

func newS3Store(uploader uploadAPI, bucket string, logger zerolog.Logger) *S3Store {
	return &S3Store{uploader: uploader, bucket: bucket, logger: logger}
}

func (s *S3Store) Bucket() string {
	return s.bucket
}

// UploadChart uploads a local chart under KeyPrefix and removes the local
// file once the upload succeeded. On failure the file is left in place.
func (s *S3Store) UploadChart(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open chart file: %w", err)
	}

	key := ObjectKey(localPath)
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, s.bucket, key, err)
	}

	s.logger.Info().Str("file", localPath).Str("bucket", s.bucket).Str("key", key).Msg("[S3] chart uploaded")

	if err := os.Remove(localPath); err != nil {
		s.logger.Warn().Err(err).Str("file", localPath).Msg("[S3] failed to remove local chart")
	}
	return PublicURL(s.bucket, key), nil
}

func ObjectKey(localPath string) string {
	return KeyPrefix + filepath.Base(localPath)
}

// PublicURL is the virtual-hosted-style address of an object. It assumes a
// public-read bucket policy.
func PublicURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}
