package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrStorageDisabled is returned when no bucket is configured.
var ErrStorageDisabled = errors.New("media: storage not configured")

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner signs GET requests for private buckets.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Storage writes media objects to a bucket and hands back a URL the CRM can open.
type S3Storage struct {
	bucket        string
	client        S3API
	presigner     Presigner
	publicBaseURL string
	urlTTL        time.Duration
}

// S3Option customizes S3Storage.
type S3Option func(*S3Storage)

// WithPublicBaseURL serves objects as {base}/{key} instead of presigning.
func WithPublicBaseURL(base string) S3Option {
	return func(s *S3Storage) {
		s.publicBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithPresigner signs object URLs valid for ttl.
func WithPresigner(p Presigner, ttl time.Duration) S3Option {
	return func(s *S3Storage) {
		s.presigner = p
		if ttl > 0 {
			s.urlTTL = ttl
		}
	}
}

// NewS3Storage creates the storage. An empty bucket disables it.
func NewS3Storage(client S3API, bucket string, opts ...S3Option) *S3Storage {
	s := &S3Storage{bucket: bucket, client: client, urlTTL: 7 * 24 * time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a bucket and client are configured.
func (s *S3Storage) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// Put uploads data under key and returns its retrievable URL.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrStorageDisabled
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	return s.URL(ctx, key)
}

// URL resolves the address of a stored object.
func (s *S3Storage) URL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	if s.presigner == nil {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("media: presign %s: %w", key, err)
	}
	return req.URL, nil
}
