package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotConfigured is returned by a nil *Assets.
var ErrNotConfigured = errors.New("asset storage not configured")

// S3Config holds S3-compatible storage configuration for kid photos.
type S3Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PresignExpiry time.Duration
}

// Enabled reports whether enough is set to talk to a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// s3Client is an interface for testability.
type s3Client interface {
	HeadObject(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Assets serves uploaded kid photos out of a bucket as presigned GET URLs.
type Assets struct {
	client  s3Client
	presign presigner
	bucket  string
	expiry  time.Duration
}

// NewAssets returns nil when cfg is not enabled.
func NewAssets(cfg S3Config) *Assets {
	if !cfg.Enabled() {
		return nil
	}
	client := newS3Client(cfg)
	return newAssets(client, s3.NewPresignClient(client), cfg)
}

func newAssets(client s3Client, p presigner, cfg S3Config) *Assets {
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Assets{client: client, presign: p, bucket: cfg.Bucket, expiry: expiry}
}

func newS3Client(cfg S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// ResolveAssetURL checks that the object exists and returns a presigned URL
// for it.
func (a *Assets) ResolveAssetURL(ctx context.Context, assetID string) (string, error) {
	if a == nil {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(assetID),
	}); err != nil {
		return "", fmt.Errorf("head object: %w", err)
	}

	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(assetID),
	}, func(o *s3.PresignOptions) {
		o.Expires = a.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

// Delete removes an uploaded photo.
func (a *Assets) Delete(ctx context.Context, assetID string) error {
	if a == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(assetID),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
