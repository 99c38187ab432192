package adapters

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorCodeStore(t *testing.T) {
	dir := t.TempDir()

	first, err := NewVisitorCodeStore(dir, "TRACK1").Code(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 36)
	assert.FileExists(t, filepath.Join(dir, "INSTALLATION-TRACK1"))

	t.Run("should survive a restart", func(t *testing.T) {
		again, err := NewVisitorCodeStore(dir, "TRACK1").Code(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	})

	t.Run("should differ per tracking code", func(t *testing.T) {
		other, err := NewVisitorCodeStore(dir, "TRACK2").Code(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
	})
}

func TestRuntimeFeatureProvider(t *testing.T) {
	provider := &RuntimeFeatureProvider{
		Visitors:   NewVisitorCodeStore(t.TempDir(), "TRACK"),
		SDKVersion: "1.0.0",
		AppVersion: "2.3.4",
	}

	features, err := provider.Features(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, features.VisitorCode)
	assert.NotEmpty(t, features.OSType)

	values := features.DeviceValues()
	assert.Equal(t, "1.0.0", values.Get(ParamSDKVersion))
	assert.Equal(t, "2.3.4", values.Get(ParamAppVersion))
	_, hasBrand := values[ParamBrand]
	assert.True(t, hasBrand)
}
