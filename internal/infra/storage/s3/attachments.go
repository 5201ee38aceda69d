// Package s3 stores chat image attachments in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotConfigured = errors.New("s3: attachments are not configured")

// Object describes a stored attachment.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// Store keeps attachments under conversations/<id>/ and hands out public
// URLs that clients send as image messages.
type Store struct {
	bucket    string
	publicURL string
	client    *minio.Client
	logger    *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

// Config holds connection settings. PublicEndpoint is the base URL
// clients use; it defaults to Endpoint.
type Config struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	client, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	public := strings.TrimSpace(cfg.PublicEndpoint)
	if public == "" {
		public = endpoint
	}
	if !strings.Contains(public, "://") {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		public = scheme + public
	}
	return &Store{
		bucket:    bucket,
		publicURL: strings.TrimRight(public, "/"),
		client:    client,
		logger:    logger,
	}, nil
}

// PutAttachment uploads r as a new object for conversationID. The object
// name is random; only the extension of filename is kept.
func (s *Store) PutAttachment(ctx context.Context, conversationID, filename string, r io.Reader, size int64, contentType string) (Object, error) {
	if s == nil {
		return Object{}, ErrNotConfigured
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || strings.ContainsAny(conversationID, "/\\") {
		return Object{}, errors.New("s3: invalid conversation id")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return Object{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := path.Join("conversations", conversationID, uuid.NewString()+strings.ToLower(path.Ext(filename)))
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Object{}, fmt.Errorf("s3: put object: %w", err)
	}
	obj := Object{Key: key, URL: s.objectURL(key), ContentType: contentType, Size: info.Size}
	if s.logger != nil {
		s.logger.Info("attachment stored", "bucket", s.bucket, "key", key, "size", info.Size)
	}
	return obj, nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return ErrNotConfigured
	}
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// ensureBucket creates the bucket with anonymous read on first use.
func (s *Store) ensureBucket(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			s.bucketErr = fmt.Errorf("s3: create bucket: %w", err)
			return
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/conversations/*"]}]}`, s.bucket)
		if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
			s.bucketErr = fmt.Errorf("s3: set bucket policy: %w", err)
		}
	})
	return s.bucketErr
}

func (s *Store) objectURL(key string) string {
	return s.publicURL + "/" + s.bucket + "/" + key
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}
