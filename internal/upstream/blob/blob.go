// Package blob stores fetched media in an S3-compatible bucket so it is
// downloaded from the upstream only once.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/waypointhq/waypoint/internal/config"
)

// ObjectAPI is the subset of the S3 client used by Bucket.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Bucket is a prefixed view of one bucket.
type Bucket struct {
	api           ObjectAPI
	name          string
	region        string
	endpoint      string
	prefix        string
	publicBaseURL string
}

// Object is an upload request.
type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// Open builds an S3 client from configuration. Static credentials are used
// when both halves are set, otherwise the default AWS chain applies.
func Open(ctx context.Context, cfg config.BlobConfig) (*Bucket, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("blob: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// New wraps an existing client.
func New(api ObjectAPI, cfg config.BlobConfig) *Bucket {
	return &Bucket{
		api:           api,
		name:          cfg.Bucket,
		region:        cfg.Region,
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Key returns the object key for name under the configured prefix.
func (b *Bucket) Key(name string) string {
	name = strings.TrimLeft(name, "/")
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

// Exists reports whether key is present.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, fmt.Errorf("blob: head %s: %w", key, err)
}

// Put uploads obj.
func (b *Bucket) Put(ctx context.Context, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(obj.Key),
		Body:        bytes.NewReader(obj.Data),
		ContentType: aws.String(obj.ContentType),
		Metadata:    obj.Metadata,
	}
	if obj.CacheControl != "" {
		input.CacheControl = aws.String(obj.CacheControl)
	}
	if _, err := b.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("blob: put %s: %w", obj.Key, err)
	}
	return nil
}

// PublicURL returns the address clients use to download key.
func (b *Bucket) PublicURL(key string) string {
	switch {
	case b.publicBaseURL != "":
		return b.publicBaseURL + "/" + key
	case b.endpoint != "":
		return b.endpoint + "/" + b.name + "/" + key
	case b.region != "":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.name, b.region, key)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", b.name, key)
	}
}
