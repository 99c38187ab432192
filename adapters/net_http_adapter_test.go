package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetHTTPAdapter_Send(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(
		httphelpers.HandlerWithResponse(200, http.Header{"Content-Type": {"application/json"}}, []byte(`{"data":{"sessionCode":"abc"}}`)),
	)
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		adapter := NewNetHTTPAdapter("beacon-test/1.0")
		form := url.Values{ParamEventKey: {"play"}, ParamEventValue: {"a b"}}

		resp, err := adapter.Send(context.Background(), server.URL+"/api/event/create", form)
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.Equal(t, 200, resp.Status)
		assert.JSONEq(t, `{"data":{"sessionCode":"abc"}}`, string(resp.Body))

		r := <-requestsCh
		assert.Equal(t, http.MethodPost, r.Request.Method)
		assert.Equal(t, "/api/event/create", r.Request.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Request.Header.Get("Content-Type"))
		assert.Equal(t, "beacon-test/1.0", r.Request.Header.Get("User-Agent"))

		received, err := url.ParseQuery(string(r.Body))
		require.NoError(t, err)
		assert.Equal(t, "a b", received.Get(ParamEventValue))
	})
}

func TestNetHTTPAdapter_SendErrorStatus(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(500), func(server *httptest.Server) {
		adapter := NewNetHTTPAdapter("")

		resp, err := adapter.Send(context.Background(), server.URL, url.Values{})
		require.NoError(t, err)
		assert.False(t, resp.OK)
		assert.Equal(t, 500, resp.Status)
	})
}

func TestNetHTTPAdapter_SendUnreachable(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	endpoint := server.URL
	server.Close()

	_, err := NewNetHTTPAdapter("").Send(context.Background(), endpoint, url.Values{})
	assert.Error(t, err)
}

func TestNetHTTPAdapter_SendInvalidURL(t *testing.T) {
	_, err := NewNetHTTPAdapter("").Send(context.Background(), "ht!tp://invalid", url.Values{})
	assert.Error(t, err)
}

func TestNetHTTPAdapter_SendHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})

	httphelpers.WithServer(slow, func(server *httptest.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewNetHTTPAdapter("").Send(ctx, server.URL, url.Values{})
		assert.Error(t, err)
	})
}
