// Package s3store implements the blob store on S3 or an S3-compatible
// service such as MinIO or LocalStack.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/resilience"
)

const defaultRegion = "us-east-1"

type Options struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string

	ResilienceExecutor *resilience.Executor
}

type Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
	executor *resilience.Executor
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	endpoint, pathStyle, err := resolveEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	region := opts.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
		// Retries are owned by the resilience executor.
		o.Retryer = aws.NopRetryer{}
	})

	return &Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   opts.Bucket,
		region:   region,
		executor: opts.ResilienceExecutor,
	}, nil
}

// resolveEndpoint returns the endpoint override and addressing style. AWS
// hosts use virtual-hosted addressing and the SDK's own endpoint resolution;
// anything else (MinIO, LocalStack) needs path-style requests to the
// configured URL.
func resolveEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false, fmt.Errorf("s3 endpoint must start with http:// or https://, got %q", raw)
	}
	if strings.Contains(parsed.Host, "amazonaws.com") {
		return "", false, nil
	}
	return strings.TrimRight(raw, "/"), true, nil
}

func (s *Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	err := s.executor.Execute(ctx, "s3.head_bucket", func(ctx context.Context) error {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
		return err
	}, classifyS3Error)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return wrapUnavailable("head bucket", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	err = s.executor.Execute(ctx, "s3.create_bucket", func(ctx context.Context) error {
		_, err := s.client.CreateBucket(ctx, input)
		return err
	}, classifyS3Error)
	if err != nil && !isAlreadyOwned(err) {
		return wrapUnavailable("create bucket", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	seeker, ok := body.(io.ReadSeeker)
	if !ok {
		raw, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("buffer upload body: %w", err)
		}
		seeker = bytes.NewReader(raw)
		size = int64(len(raw))
	}

	err := s.executor.Execute(ctx, "s3.put_object", func(ctx context.Context) error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind upload body: %w", err)
		}
		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        seeker,
			ContentType: aws.String(contentType),
		}
		if size > 0 {
			input.ContentLength = aws.Int64(size)
		}
		_, err := s.client.PutObject(ctx, input)
		return err
	}, classifyS3Error)
	if err != nil {
		return wrapUnavailable("put object", err)
	}
	return nil
}

func (s *Store) Head(ctx context.Context, key string) (domain.ObjectInfo, error) {
	var out *s3.HeadObjectOutput
	err := s.executor.Execute(ctx, "s3.head_object", func(ctx context.Context) error {
		var err error
		out, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	}, classifyS3Error)
	if err != nil {
		if isNotFound(err) {
			return domain.ObjectInfo{}, domain.WrapError(domain.ErrObjectNotFound, "head object", err)
		}
		return domain.ObjectInfo{}, wrapUnavailable("head object", err)
	}

	return domain.ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

func wrapUnavailable(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.WrapError(domain.ErrStorageUnavailable, "s3 "+operation, err)
}
