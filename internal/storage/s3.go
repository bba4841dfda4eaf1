package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/photogrid/gallery/internal/config"
	"github.com/photogrid/gallery/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "galleryd/storage"

// defaultContentType is served for objects stored without a content type.
const defaultContentType = "image/jpeg"

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements Store on a single bucket.
type S3Store struct {
	bucket    string
	client    objectGetter
	presigner objectPresigner
	ttl       time.Duration

	// urls caches presigned URLs for half their lifetime so a cached URL
	// always has at least ttl/2 left when handed out.
	urls *expirable.LRU[string, string]
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds the S3 client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Store(cfg.Bucket, client, s3.NewPresignClient(client), cfg.PresignTTL, cfg.PresignCache), nil
}

func newS3Store(bucket string, client objectGetter, presigner objectPresigner, ttl time.Duration, cacheSize int) *S3Store {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &S3Store{
		bucket:    bucket,
		client:    client,
		presigner: presigner,
		ttl:       ttl,
		urls:      expirable.NewLRU[string, string](cacheSize, nil, ttl/2),
	}
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	key = NormalizeKey(key)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "storage.Get", attribute.String(telemetry.AttrObjectKey, key))
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	obj := &Object{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
	}
	if obj.ContentType == "" {
		obj.ContentType = defaultContentType
	}
	return obj, nil
}

// PresignGet implements Store.
func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	key = NormalizeKey(key)
	if url, ok := s.urls.Get(key); ok {
		return url, nil
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "storage.PresignGet", attribute.String(telemetry.AttrObjectKey, key))
	defer span.End()

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("presign object %q: %w", key, err)
	}

	s.urls.Add(key, req.URL)
	return req.URL, nil
}
