package vault

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hardwire/internal/config"
	"hardwire/internal/hardwire"
)

// S3Vault uploads archives to an S3 bucket or an S3-compatible server.
// Large archives are sent as multipart uploads.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Vault builds a client from cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Vault{
		name:     cfg.Name,
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (v *S3Vault) Name() string { return v.name }

// PutArchive uploads r under prefix/key and returns an s3:// URL.
func (v *S3Vault) PutArchive(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	objectKey := joinKey(v.prefix, key)

	counted := &countingReader{r: r}
	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(objectKey),
		Body:        counted,
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to bucket %s: %w", objectKey, v.bucket, err)
	}
	if counted.n != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return fmt.Sprintf("s3://%s/%s", v.bucket, objectKey), nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".age") {
		return "application/octet-stream"
	}
	return "application/zip"
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ hardwire.Vault = (*S3Vault)(nil)
