package adapters

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialConnectivityAdapter(t *testing.T) {
	t.Run("should report a listening collector as connected", func(t *testing.T) {
		httphelpers.WithServer(httphelpers.HandlerWithStatus(200), func(server *httptest.Server) {
			adapter, err := NewDialConnectivityAdapter(server.URL+"/api", time.Second)
			require.NoError(t, err)
			assert.True(t, adapter.IsConnected(context.Background()))
		})
	})

	t.Run("should report a closed port as disconnected", func(t *testing.T) {
		server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
		serverURL := server.URL
		server.Close()

		adapter, err := NewDialConnectivityAdapter(serverURL, time.Second)
		require.NoError(t, err)
		assert.False(t, adapter.IsConnected(context.Background()))
	})

	t.Run("should default the port by scheme", func(t *testing.T) {
		adapter, err := NewDialConnectivityAdapter("https://collector.example.com/api", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "collector.example.com:443", adapter.address)

		adapter, err = NewDialConnectivityAdapter("http://collector.example.com", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "collector.example.com:80", adapter.address)
	})

	t.Run("should reject a url without host", func(t *testing.T) {
		_, err := NewDialConnectivityAdapter("/api", time.Second)
		assert.Error(t, err)
	})
}

func TestStaticConnectivityAdapter(t *testing.T) {
	adapter := NewStaticConnectivityAdapter(false)
	assert.False(t, adapter.IsConnected(context.Background()))

	adapter.Set(true)
	assert.True(t, adapter.IsConnected(context.Background()))
}
