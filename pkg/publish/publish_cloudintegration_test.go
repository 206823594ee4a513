//go:build cloudintegration

package publish_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lifeshots/pkg/publish"
	"github.com/3leaps/lifeshots/test/cloudtest"
)

func TestPublishToS3_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)

	pub, err := publish.Open(ctx, "s3://"+bucket+"/docs/screenshots/", publish.Options{
		Region:          cloudtest.Region,
		Endpoint:        cloudtest.Endpoint,
		AccessKeyID:     cloudtest.TestAccessKeyID,
		SecretAccessKey: cloudtest.TestSecretAccessKey,
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	src := filepath.Join(t.TempDir(), "glider.png")
	require.NoError(t, os.WriteFile(src, []byte("PNG"), 0o644))

	res, err := pub.Publish(ctx, src, "")
	require.NoError(t, err)
	assert.Equal(t, "docs/screenshots/glider.png", res.Key)
	assert.Equal(t, "s3://"+bucket+"/docs/screenshots/glider.png", res.Destination)
	require.NoError(t, pub.Verify(ctx, res))

	assert.Equal(t, []byte("PNG"), cloudtest.GetObject(t, ctx, bucket, res.Key))
}
