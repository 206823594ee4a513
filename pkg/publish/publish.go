// Package publish copies rendered screenshots to a file or s3 destination.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/3leaps/lifeshots/pkg/provider"
	"github.com/3leaps/lifeshots/pkg/provider/file"
	"github.com/3leaps/lifeshots/pkg/provider/s3"
)

// Options carries s3 connection settings. File destinations ignore it.
type Options struct {
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	DetectRegion    bool

	// Verify heads every object after upload and checks its size.
	Verify bool
}

// Result describes one published artifact.
type Result struct {
	Source      string
	Destination string
	Key         string
	Bytes       int64
}

// Publisher uploads artifacts to a single destination.
type Publisher struct {
	dest   *Destination
	prov   provider.Provider
	verify bool
}

// New returns a publisher writing to dest through prov.
func New(dest *Destination, prov provider.Provider) *Publisher {
	return &Publisher{dest: dest, prov: prov}
}

// Open parses uri and constructs the matching provider.
func Open(ctx context.Context, uri string, opts Options) (*Publisher, error) {
	dest, err := ParseDestination(uri)
	if err != nil {
		return nil, err
	}

	var prov provider.Provider
	switch dest.Provider {
	case provider.ProviderS3:
		prov, err = s3.New(ctx, s3.Config{
			Bucket:          dest.Bucket,
			Region:          opts.Region,
			Endpoint:        opts.Endpoint,
			Profile:         opts.Profile,
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
			ForcePathStyle:  opts.ForcePathStyle,
			DetectRegion:    opts.DetectRegion,
		})
	default:
		prov, err = file.New(file.Config{BaseDir: dest.Dir})
	}
	if err != nil {
		return nil, fmt.Errorf("open publisher %s: %w", dest, err)
	}
	pub := New(dest, prov)
	pub.verify = opts.Verify
	return pub, nil
}

// Destination returns the canonical destination URI.
func (p *Publisher) Destination() string { return p.dest.String() }

// Publish uploads the file at localPath as name, a slash-separated path
// under the destination. An empty name publishes under the base name.
func (p *Publisher) Publish(ctx context.Context, localPath, name string) (Result, error) {
	res := Result{Source: localPath}

	f, err := os.Open(localPath)
	if err != nil {
		return res, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return res, fmt.Errorf("stat artifact: %w", err)
	}
	if st.IsDir() {
		return res, fmt.Errorf("artifact %s is a directory", localPath)
	}

	key := p.dest.Key(objectName(localPath, name))
	res.Key = key
	res.Destination = p.dest.Location(key)

	if err := p.prov.PutObject(ctx, key, f, st.Size()); err != nil {
		return res, err
	}
	res.Bytes = st.Size()

	if p.verify {
		if err := p.Verify(ctx, res); err != nil {
			return res, fmt.Errorf("verify %s: %w", res.Destination, err)
		}
	}
	return res, nil
}

// objectName cleans name so it cannot climb out of the destination.
func objectName(localPath, name string) string {
	name = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(strings.TrimSpace(name))), "/")
	if name == "" {
		return filepath.Base(localPath)
	}
	return name
}

// Verify checks that a published key exists with the expected size.
func (p *Publisher) Verify(ctx context.Context, res Result) error {
	meta, err := p.prov.Head(ctx, res.Key)
	if err != nil {
		return err
	}
	if meta.Size != res.Bytes {
		return fmt.Errorf("published %s has %d bytes, want %d", res.Destination, meta.Size, res.Bytes)
	}
	return nil
}

// Close releases the underlying provider.
func (p *Publisher) Close() error { return p.prov.Close() }
