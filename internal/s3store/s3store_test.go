package s3store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, prefix, err := ParseURI("s3://render-bucket/JobAssets")
	require.NoError(t, err)
	assert.Equal(t, "render-bucket", bucket)
	assert.Equal(t, "JobAssets", prefix)
}

func TestParseURIBucketOnly(t *testing.T) {
	bucket, prefix, err := ParseURI("s3://render-bucket")
	require.NoError(t, err)
	assert.Equal(t, "render-bucket", bucket)
	assert.Empty(t, prefix)
}

func TestParseURITrimsSlashes(t *testing.T) {
	_, prefix, err := ParseURI("s3://b/deep/prefix/")
	require.NoError(t, err)
	assert.Equal(t, "deep/prefix", prefix)
}

func TestParseURIRejectsOtherSchemes(t *testing.T) {
	_, _, err := ParseURI("gs://bucket/prefix")
	require.Error(t, err)

	_, _, err = ParseURI("s3://")
	require.Error(t, err)
}
