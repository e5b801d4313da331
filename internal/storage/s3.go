package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mrchevyceleb/vibecanvas/internal/infra"
)

// S3Store persists blobs in an S3-compatible bucket and signs GET URLs with
// SigV4 presigning.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewS3Store builds an S3Store from the ambient AWS credential chain plus the
// region and optional custom endpoint in cfg.
func NewS3Store(ctx context.Context, cfg infra.Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3Bucket,
		prefix:  strings.Trim(cfg.S3Prefix, "/"),
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg infra.Config) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.S3Region))
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: cfg.S3Endpoint, Source: aws.EndpointSourceCustom, HostnameImmutable: true}, nil
			}
			return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
		})
		opts = append(opts, awscfg.WithEndpointResolverWithOptions(resolver))
	}
	return awscfg.LoadDefaultConfig(ctx, opts...)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	objectKey := s.objectKey(cleanKey)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objectKey,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return cleanKey, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (Object, error) {
	objectKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		if isNoSuchKey(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("storage: get object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("storage: read object body: %w", err)
	}
	return Object{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	objectKey := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	objectKey := s.objectKey(key)
	// HeadObject first so a missing blob surfaces as ErrNotFound rather than
	// a presigned URL that 404s later.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		if isNoSuchKey(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: head object: %w", err)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign object: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + strings.TrimPrefix(key, "/")
}

func isNoSuchKey(err error) bool {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}
