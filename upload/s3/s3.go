// Package s3 stores accepted uploads in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jmcleod/storefront/upload"
)

// ObjectAPI is the subset of the S3 client the storage needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config describes how to reach the bucket.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Storage implements upload.Storage on S3.
type Storage struct {
	api    ObjectAPI
	bucket string
	prefix string
}

var _ upload.Storage = (*Storage)(nil)

// New returns a Storage writing to bucket under prefix.
func New(api ObjectAPI, bucket, prefix string) *Storage {
	return &Storage{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewFromConfig builds an SDK client from cfg. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
func NewFromConfig(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix), nil
}

// Write uploads obj and returns its s3:// location.
func (s *Storage) Write(ctx context.Context, obj upload.Object) (string, error) {
	key := s.key(obj.Name)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        obj.Body,
		ContentType: aws.String(obj.ContentType),
	}
	if obj.Size > 0 {
		input.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3: put %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Remove deletes the object written under name. S3 reports success for
// missing keys.
func (s *Storage) Remove(ctx context.Context, name string) error {
	key := s.key(name)
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (s *Storage) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
