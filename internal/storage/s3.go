package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
)

// S3Storage retains raw uploads in an S3-compatible bucket (AWS S3,
// Cloudflare R2 or any path-style compatible service).
type S3Storage struct {
	client    *s3.Client
	bucket    string
	isR2      bool
	publicURL string
}

// NewS3Storage creates an S3-compatible storage client from configuration.
func NewS3Storage(cfg *config.StorageConfig) (*S3Storage, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)
	isR2 := cfg.Type == "r2" || strings.Contains(endpoint, "r2.cloudflarestorage.com")

	region := cfg.Region
	if region == "" {
		if isR2 {
			region = "auto"
		} else {
			region = "us-east-1"
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			o.BaseEndpoint = aws.String(scheme + "://" + endpoint)
			// Path-style addressing for S3-compatible services
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    cfg.Bucket,
		isR2:      isR2,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

// normalizeEndpoint strips protocol, path and trailing slashes.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return strings.TrimSuffix(endpoint, "/")
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *S3Storage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	// R2 buckets cannot be created through the S3 API
	if s.isR2 {
		return fmt.Errorf("bucket %s does not exist, create it in the R2 dashboard", s.bucket)
	}

	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload stores an object under the given key.
func (s *S3Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Download opens an object for reading.
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return result.Body, nil
}

// GetURL returns the public URL for an object.
func (s *S3Storage) GetURL(key string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, key)
}

// Delete removes an object.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks if an object exists.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
