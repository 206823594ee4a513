package publish

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/3leaps/lifeshots/pkg/provider"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates an s3 URI without a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// Destination is a parsed publish target.
//
// Example URIs:
//   - s3://bucket
//   - s3://bucket/docs/screenshots/
//   - file:///srv/site/screenshots
//   - ./site/screenshots (bare paths are file destinations)
type Destination struct {
	Provider provider.ProviderType

	// Bucket is set for s3 destinations.
	Bucket string

	// Prefix is the key prefix inside the bucket, without leading or
	// trailing slashes.
	Prefix string

	// Dir is the local directory for file destinations.
	Dir string
}

// String returns the destination in canonical form.
func (d *Destination) String() string {
	switch d.Provider {
	case provider.ProviderS3:
		if d.Prefix != "" {
			return fmt.Sprintf("s3://%s/%s/", d.Bucket, d.Prefix)
		}
		return fmt.Sprintf("s3://%s/", d.Bucket)
	default:
		return "file://" + filepath.ToSlash(d.Dir)
	}
}

// Key returns the object key an artifact named name is published under.
func (d *Destination) Key(name string) string {
	if d.Prefix == "" {
		return name
	}
	return path.Join(d.Prefix, name)
}

// Location returns the human-readable location of key.
func (d *Destination) Location(key string) string {
	switch d.Provider {
	case provider.ProviderS3:
		return fmt.Sprintf("s3://%s/%s", d.Bucket, key)
	default:
		return filepath.Join(d.Dir, filepath.FromSlash(key))
	}
}

// ParseDestination parses a publish URI.
func ParseDestination(uri string) (*Destination, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		abs, err := filepath.Abs(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		return &Destination{Provider: provider.ProviderFile, Dir: abs}, nil
	}

	scheme := strings.ToLower(uri[:schemeEnd])
	remainder := uri[schemeEnd+3:]

	switch scheme {
	case "file":
		if remainder == "" {
			return nil, fmt.Errorf("%w: missing path in %s", ErrInvalidURI, uri)
		}
		abs, err := filepath.Abs(filepath.FromSlash(remainder))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		return &Destination{Provider: provider.ProviderFile, Dir: abs}, nil
	case "s3":
		return parseS3(uri, remainder)
	default:
		return nil, fmt.Errorf("%w: %s (supported: s3, file)", ErrUnsupportedProvider, scheme)
	}
}

func parseS3(uri, remainder string) (*Destination, error) {
	bucket, prefix, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}

	// Basic validation: S3 bucket names can't contain most special chars.
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	return &Destination{
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Prefix:   strings.Trim(prefix, "/"),
	}, nil
}
