package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	registryimages "github.com/BusyMan009/my-thrift-backend/internal/registry/images"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

func init() {
	registryimages.Register(registryimages.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registryimages.ImageStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return &S3ImageStore{
		client:           client,
		bucket:           cfg.S3Bucket,
		prefix:           strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
		externalEndpoint: strings.TrimSpace(cfg.S3ExternalEndpoint),
		usePathStyle:     usePathStyle,
	}, nil
}

type S3ImageStore struct {
	client           *s3.Client
	bucket           string
	prefix           string
	externalEndpoint string
	usePathStyle     bool
}

// s3Key returns the actual S3 object key for an image key. The prefix is
// applied at access time and never persisted.
func (s *S3ImageStore) s3Key(key string) string {
	if s.prefix != "" {
		return s.prefix + "/" + key
	}
	return key
}

// publicURL builds the stable, publicly served URL for an image key.
// Product images are world-readable, so no presigning is involved.
func (s *S3ImageStore) publicURL(key string) string {
	s3Key := s.s3Key(key)
	if s.externalEndpoint != "" {
		return strings.TrimRight(s.externalEndpoint, "/") + "/" + s.bucket + "/" + s3Key
	}
	if s.usePathStyle {
		return fmt.Sprintf("https://s3.amazonaws.com/%s/%s", s.bucket, s3Key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, s3Key)
}

func (s *S3ImageStore) Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryimages.StoreResult, error) {
	ext := extensionFor(contentType)
	key := uuid.New().String() + ext
	s3Key := s.s3Key(key)

	// Product images are small; buffering in memory beats a temp file here.
	buf, err := io.ReadAll(io.LimitReader(data, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3store: buffer upload stream: %w", err)
	}
	if int64(len(buf)) > maxSize {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", maxSize)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &s3Key,
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		ContentType:   &contentType,
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: put object: %w", err)
	}

	return &registryimages.StoreResult{
		URL:  s.publicURL(key),
		Key:  key,
		Size: int64(len(buf)),
	}, nil
}

func (s *S3ImageStore) Delete(ctx context.Context, key string) error {
	s3Key := s.s3Key(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &s3Key,
	})
	return err
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
