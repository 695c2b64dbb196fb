// Package s3client wraps the AWS SDK operations the downloader needs:
// a size probe, ranged object reads, and a direct single-stream download
// for small objects.
package s3client

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of the S3 client used by this tool. It exists
// so tests can substitute a mock.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config controls how the S3 client is built.
type Config struct {
	Profile   string
	Region    string
	Anonymous bool // unsigned requests for public buckets
	Insecure  bool // plain HTTP instead of HTTPS
}

// Store is the remote-object collaborator handed to the transfer layer.
type Store struct {
	api ObjectAPI
}

// New builds a Store backed by a real S3 client using the shared config
// chain.
func New(ctx context.Context, conf Config) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMode("adaptive"),
	}
	if conf.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(conf.Profile))
	}
	if conf.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(conf.Region))
	}
	if conf.Anonymous {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.DisableLogOutputChecksumValidationSkipped = true
		if conf.Insecure {
			o.EndpointOptions.DisableHTTPS = true
		}
	})
	return &Store{api: client}, nil
}

// NewFromAPI builds a Store around an existing client, used by tests.
func NewFromAPI(api ObjectAPI) *Store {
	return &Store{api: api}
}

// ParseURL splits an s3://bucket/key URL into bucket and key. Returns
// ErrInvalidSource for anything that is not an s3 URL with a key.
func ParseURL(rawURL string) (string, string, error) {
	if !strings.HasPrefix(rawURL, "s3://") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSource, rawURL)
	}
	parts := strings.SplitN(strings.TrimPrefix(rawURL, "s3://"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSource, rawURL)
	}
	return parts[0], parts[1], nil
}
