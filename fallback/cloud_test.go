package fallback

import (
	"context"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCloudDetector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, "frame.jpg", header.Filename)

		img, err := jpeg.Decode(file)
		if assert.NoError(t, err) {
			assert.Equal(t, 64, img.Bounds().Dx())
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"label":"door","score":0.75,"location":[4,8,16,32]}]`))
	}))
	defer server.Close()

	cfg := DefaultConfig().Cloud
	cfg.URL = server.URL
	boxes, err := NewHTTPCloudDetector(cfg, nil).DetectFrame(context.Background(), testFrame(64, 48))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, CloudBox{Label: "door", Score: 0.75, X: 4, Y: 8, W: 16, H: 32}, boxes[0])
}

func TestHTTPCloudDetectorErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "status", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}},
		{name: "malformed json", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"label":`))
		}},
		{name: "short location", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"label":"door","score":0.75,"location":[4,8]}]`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			cfg := DefaultConfig().Cloud
			cfg.URL = server.URL
			_, err := NewHTTPCloudDetector(cfg, nil).DetectFrame(context.Background(), testFrame(8, 8))
			assert.True(t, errors.Is(err, ErrService), "got %v", err)
		})
	}
}

func TestHTTPCloudDetectorEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := DefaultConfig().Cloud
	cfg.URL = server.URL
	cascade := NewCascade(DefaultConfig(), nil, NewHTTPCloudDetector(cfg, nil), nil)
	result := cascade.CloudFallback(context.Background(), testFrame(8, 8))
	assert.False(t, result.Identified)
	assert.NoError(t, result.Err)
}

func TestCloudFallbackTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.Cloud.URL = server.URL
	cfg.Cloud.Timeout = 50 * time.Millisecond
	cascade := NewCascade(cfg, nil, NewHTTPCloudDetector(cfg.Cloud, &http.Client{}), nil)

	result := cascade.CloudFallback(context.Background(), testFrame(8, 8))
	assert.False(t, result.Identified)
	assert.True(t, errors.Is(result.Err, ErrService))
	assert.Equal(t, uint64(1), cascade.Stats().CloudFailures)
}
