// Package s3 stores tables as objects in an S3-compatible bucket (AWS S3 or MinIO).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"sleepgen/internal/blob"
)

// Environment variables read by the registered factory:
//
//	SLEEPGEN_S3_REGION=<region>      (default us-east-1)
//	SLEEPGEN_S3_ENDPOINT=<url>       (optional, e.g. MinIO)
//	SLEEPGEN_S3_PATH_STYLE=true|false
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func init() {
	blob.Register("s3", func(ctx context.Context, loc blob.Location) (blob.Store, error) {
		return New(ctx, Config{
			Bucket:    loc.Bucket,
			Region:    os.Getenv("SLEEPGEN_S3_REGION"),
			Endpoint:  os.Getenv("SLEEPGEN_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("SLEEPGEN_S3_PATH_STYLE"), "true"),
		})
	})
}

// Config holds explicit construction parameters.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional custom endpoint
	PathStyle bool
}

// objectAPI is the subset of *s3.Client the store needs.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store is a single-bucket S3 backend. Keys are object keys.
type Store struct {
	api    objectAPI
	bucket string
}

// New builds a Store using the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{api: client, bucket: cfg.Bucket}, nil
}

// Get streams the object body.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", blob.ErrNotFound, s.bucket, key)
		}
		return nil, err
	}
	return out.Body, nil
}

// Put uploads data in one PutObject call; S3 replaces objects atomically.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("text/csv"),
	})
	return err
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

var _ blob.Store = (*Store)(nil)
