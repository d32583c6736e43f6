package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/hoard/internal/utils"
)

func TestResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/download/games/alpha.zip", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "custom", r.Header.Get("X-Client"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"fileInfo":{"size":1024,"hash":"ABCD","providersCount":4},"downloadUrl":"http://peer-1/x","server":"peer-1"}`))
	}))
	defer server.Close()

	b := NewBalancer(Options{
		BaseURL: server.URL,
		Token:   "secret",
		HTTP:    utils.HTTPClientConfig{Headers: map[string]string{"X-Client": "custom"}},
	})
	res, err := b.Resolve(context.Background(), "games/alpha.zip")
	require.NoError(t, err)
	assert.Equal(t, "http://peer-1/x", res.DownloadURL)
	assert.Equal(t, "peer-1", res.ProviderID)
	assert.Equal(t, FileInfo{Size: 1024, ExpectedHash: "ABCD", ProviderCount: 4}, res.FileInfo)
}

func TestResolveFailures(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"not success": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":"unknown file"}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"not found": func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			_, err := NewBalancer(Options{BaseURL: server.URL}).Resolve(context.Background(), "k")
			var resErr *utils.ResolutionError
			require.True(t, errors.As(err, &resErr), "got %v", err)
			assert.Equal(t, "k", resErr.FileKey)
		})
	}
}

func TestResolveUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewBalancer(Options{BaseURL: url}).Resolve(context.Background(), "k")
	var resErr *utils.ResolutionError
	assert.True(t, errors.As(err, &resErr))
}

func TestResolveNoBalancer(t *testing.T) {
	_, err := NewBalancer(Options{}).Resolve(context.Background(), "k")
	var resErr *utils.ResolutionError
	assert.True(t, errors.As(err, &resErr))
}

func TestResolveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true,"fileInfo":{"size":1,"hash":"h","providersCount":0},"downloadUrl":"","server":""}`))
	}))
	defer server.Close()

	res, err := NewBalancer(Options{BaseURL: server.URL, RetryMax: 2}).Resolve(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 0, res.FileInfo.ProviderCount)
	assert.Equal(t, int32(2), calls.Load())
}
