package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/askdb/askdb/internal/storage"
)

const defaultContentType = "application/octet-stream"

// Config mirrors the object store section of the service configuration.
type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("s3 endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// objectRef is a fully resolved location: bucket plus the prefixed key.
type objectRef struct {
	Bucket string
	Key    string
}

func (r objectRef) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

// backend is the slice of the S3 API the transcript archive relies on.
type backend interface {
	upload(ctx context.Context, ref objectRef, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
	download(ctx context.Context, ref objectRef) (io.ReadCloser, error)
	bucketExists(ctx context.Context, bucket string) (bool, error)
	makeBucket(ctx context.Context, bucket, region string) error
}

// Store keeps archived transcript batches in an S3-compatible bucket. Every
// key is rooted under the configured prefix and may not escape it.
type Store struct {
	backend backend
	bucket  string
	root    string
	region  string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b, err := newMinioBackend(cfg)
	if err != nil {
		return nil, err
	}
	store := newStore(cfg, b)
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(cfg Config, b backend) *Store {
	return &Store{
		backend: b,
		bucket:  strings.TrimSpace(cfg.Bucket),
		root:    cleanPrefix(cfg.Prefix),
		region:  strings.TrimSpace(cfg.Region),
	}
}

// Location renders the archive root, e.g. "s3://askdb-audit/transcripts".
func (s *Store) Location() string {
	if s.root == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.root
}

// Ping reports whether the archive bucket is reachable and exists.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.backend.bucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	ref, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if strings.TrimSpace(opts.ContentType) == "" {
		opts.ContentType = defaultContentType
	}
	info, err := s.backend.upload(ctx, ref, body, size, opts)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s: %w", ref, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ref, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.backend.download(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return reader, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.backend.bucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.backend.makeBucket(ctx, s.bucket, s.region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) resolve(key string) (objectRef, error) {
	key = strings.TrimSpace(strings.TrimLeft(key, "/"))
	if key == "" {
		return objectRef{}, errors.New("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return objectRef{}, fmt.Errorf("object key %q escapes the archive root", key)
	}
	return objectRef{Bucket: s.bucket, Key: path.Join(s.root, cleaned)}, nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if prefix = path.Clean(prefix); prefix == "." {
		return ""
	}
	return prefix
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, errors.New("endpoint host is required")
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}
}

type minioBackend struct {
	client *minio.Client
}

func newMinioBackend(cfg Config) (*minioBackend, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioBackend{client: client}, nil
}

func (m *minioBackend) upload(ctx context.Context, ref objectRef, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	info, err := m.client.PutObject(ctx, ref.Bucket, ref.Key, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, mapMinioErr(err)
	}
	return storage.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (m *minioBackend) download(ctx context.Context, ref objectRef) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (m *minioBackend) bucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, mapMinioErr(err)
	}
	return exists, nil
}

func (m *minioBackend) makeBucket(ctx context.Context, bucket, region string) error {
	return mapMinioErr(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
