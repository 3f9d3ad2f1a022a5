// Package s3 implements a snapshot backend on an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"typedobject/internal/snapshot/core"
)

// Store implements core.Backend using an S3-compatible backend (AWS S3 or MinIO).
// Single bucket; snapshot names map to object keys under an optional prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Region    string
	Bucket    string
	Prefix    string // optional key prefix, e.g. "snapshots/"
	Endpoint  string // optional; if set enables custom endpoint (e.g. MinIO)
	PathStyle bool
}

// Environment variables:
//   TYPEDOBJECT_SNAPSHOT_DRIVER=s3
//   TYPEDOBJECT_SNAPSHOT_S3_BUCKET=<bucket> (required)
//   TYPEDOBJECT_SNAPSHOT_S3_REGION=<region> (default us-east-1)
//   TYPEDOBJECT_SNAPSHOT_S3_PREFIX=<prefix> (optional)
//   TYPEDOBJECT_SNAPSHOT_S3_ENDPOINT=<url> (optional, for MinIO)
//   TYPEDOBJECT_SNAPSHOT_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

const defaultRegion = "us-east-1"

// New creates an S3 snapshot store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ConfigFromEnv reads the S3 settings from the process environment.
func ConfigFromEnv() (Config, error) {
	bucket := os.Getenv("TYPEDOBJECT_SNAPSHOT_S3_BUCKET")
	if bucket == "" {
		return Config{}, fmt.Errorf("TYPEDOBJECT_SNAPSHOT_S3_BUCKET required for s3 driver")
	}
	return Config{
		Bucket:    bucket,
		Region:    os.Getenv("TYPEDOBJECT_SNAPSHOT_S3_REGION"),
		Prefix:    os.Getenv("TYPEDOBJECT_SNAPSHOT_S3_PREFIX"),
		Endpoint:  os.Getenv("TYPEDOBJECT_SNAPSHOT_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("TYPEDOBJECT_SNAPSHOT_S3_PATH_STYLE"), "true"),
	}, nil
}

// OpenFromEnv constructs an S3 store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

func (s *Store) key(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty name", core.ErrInvalidName)
	}
	return s.prefix + name, nil
}

// Put uploads the snapshot, replacing any existing object.
func (s *Store) Put(ctx context.Context, name string, data []byte, opts core.PutOptions) (core.Info, error) {
	key, err := s.key(name)
	if err != nil {
		return core.Info{}, err
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: bytes.NewReader(data), ContentLength: aws.Int64(int64(len(data)))}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", name, err)
	}
	return s.Head(ctx, name)
}

// Get downloads the snapshot contents.
func (s *Store) Get(ctx context.Context, name string) (core.Info, []byte, error) {
	key, err := s.key(name)
	if err != nil {
		return core.Info{}, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, nil, s.translate(name, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	return s.info(name, int64(len(data)), out.ContentType, out.ETag, out.Metadata, out.LastModified), data, nil
}

// Head returns snapshot metadata only.
func (s *Store) Head(ctx context.Context, name string) (core.Info, error) {
	key, err := s.key(name)
	if err != nil {
		return core.Info{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, s.translate(name, err)
	}
	return s.info(name, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete removes the snapshot. S3 deletes are idempotent, so existence is
// checked with Head first.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	key, err := s.key(name)
	if err != nil {
		return false, err
	}
	if _, err := s.Head(ctx, name); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	return true, nil
}

// List pages through ListObjectsV2 collecting snapshots under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	full := s.prefix + prefix
	var infos []core.Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &full, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			infos = append(infos, core.Info{
				Name:         name,
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// translate maps missing-object API errors onto core.ErrNotFound.
func (s *Store) translate(name string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", core.ErrNotFound, name)
		}
	}
	return fmt.Errorf("s3 %s: %w", name, err)
}

func (s *Store) info(name string, size int64, contentType, etag *string, md map[string]string, lastModified *time.Time) core.Info {
	lm := time.Now().UTC()
	if lastModified != nil {
		lm = *lastModified
	}
	return core.Info{
		Name:         name,
		Size:         size,
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), "\""),
		Metadata:     md,
		LastModified: lm,
	}
}
