package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/songlift/songlift/pkg/assetstore"
)

const backend = "s3"

// Store implements assetstore.Store for AWS S3 and S3-compatible storage.
type Store struct {
	client *s3.Client
	cfg    Config
}

var _ assetstore.Store = (*Store)(nil)

// New creates a new S3 asset store with the given configuration.
//
// The store uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &assetstore.StoreError{Op: "New", Backend: backend, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}

	return awsCfg, nil
}

// FindOrCreateRelease resolves the key prefix for tag. Prefixes need
// no creation call in object storage, so this lists current assets
// and returns a handle carrying them.
func (s *Store) FindOrCreateRelease(ctx context.Context, tag, name string) (*assetstore.Release, error) {
	rel := &assetstore.Release{Tag: tag}

	assets, err := s.ListAssets(ctx, rel)
	if err != nil {
		return nil, err
	}
	rel.Assets = assets
	return rel, nil
}

// ListAssets returns the asset name -> public URL map for every object
// under the release prefix.
func (s *Store) ListAssets(ctx context.Context, rel *assetstore.Release) (assetstore.AssetMap, error) {
	prefix := s.prefix(rel.Tag)
	assets := assetstore.AssetMap{}

	var token *string
	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		}

		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, s.wrapError("ListAssets", rel.Tag, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if name == "" {
				continue
			}
			assets[name] = s.publicURL(key)
		}

		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return assets, nil
		}
		token = out.NextContinuationToken
	}
}

// Upload puts one asset under the release prefix and returns its
// public URL.
func (s *Store) Upload(ctx context.Context, rel *assetstore.Release, name, mime string, body io.Reader, size int64) (string, error) {
	key := s.prefix(rel.Tag) + name

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: &size,
	}
	if mime != "" {
		input.ContentType = aws.String(mime)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", s.wrapError("Upload", name, err)
	}
	return s.publicURL(key), nil
}

func (s *Store) prefix(tag string) string {
	if tag == "" {
		return ""
	}
	return tag + "/"
}

// publicURL derives the public object URL for a key.
func (s *Store) publicURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + escaped
	case s.cfg.Endpoint != "":
		return strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + escaped
	default:
		region := s.cfg.Region
		if region == "" {
			region = DefaultAWSRegion
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, region, escaped)
	}
}

// escapeKey percent-encodes each path segment while keeping the
// separators readable.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// wrapError converts S3 errors to store errors with sentinel mapping.
func (s *Store) wrapError(op, name string, err error) error {
	wrapped := &assetstore.StoreError{Op: op, Backend: backend, Name: name, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			wrapped.Err = assetstore.ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = assetstore.ErrMissingToken
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = assetstore.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = assetstore.ErrUnavailable
		}
	}
	return wrapped
}
