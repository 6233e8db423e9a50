// Package s3store implements the BlobStore capability on an S3 bucket
// (or any S3-compatible endpoint such as MinIO). Content blobs live
// under <prefix>/Data/<hash>, named manifest copies under
// <prefix>/Manifests/<file>.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/quartzrender/assetsync"
)

// Store is an S3-backed content-addressed blob store. S3 provides
// concurrent PutObject/HeadObject and per-object atomicity, which is all
// the sync engine requires.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Option configures New.
type Option func(*settings)

type settings struct {
	region    string
	endpoint  string
	accessKey string
	secretKey string
}

// WithRegion pins the bucket region.
func WithRegion(region string) Option {
	return func(s *settings) { s.region = region }
}

// WithEndpoint targets an S3-compatible endpoint (path-style addressing).
func WithEndpoint(endpoint string) Option {
	return func(s *settings) { s.endpoint = endpoint }
}

// WithStaticCredentials bypasses the default AWS credential chain.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(s *settings) {
		s.accessKey = accessKey
		s.secretKey = secretKey
	}
}

// New builds a store for s3://bucket/prefix using the default AWS config
// chain unless overridden.
func New(ctx context.Context, bucket, prefix string, opts ...Option) (*Store, error) {
	cfg := &settings{}
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.region))
	}
	if cfg.accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.accessKey, cfg.secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.endpoint)
			o.UsePathStyle = true
		}
	})

	return NewFromClient(client, bucket, prefix), nil
}

// NewFromClient wraps an existing S3 client.
func NewFromClient(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// ParseURI splits an s3://bucket/prefix CAS URI.
func ParseURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 URI %s: missing bucket", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// Exists reports whether a blob is already stored, via HeadObject.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(assetsync.BlobKey(s.prefix, hash)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", hash, err)
}

// Put uploads a blob under its content-hash key.
func (s *Store) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           aws.String(assetsync.BlobKey(s.prefix, hash)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", hash, err)
	}
	return nil
}

// Get downloads a blob by hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(assetsync.BlobKey(s.prefix, hash)),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", hash, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", hash, err)
	}
	return data, nil
}

// PutManifest publishes the named manifest copy under Manifests/.
func (s *Store) PutManifest(ctx context.Context, filename string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           aws.String(assetsync.ManifestKey(s.prefix, filename)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put manifest %s: %w", filename, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
