package objectstore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/testing/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<gpx/>"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, testLogger())
	data, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<gpx/>"), data)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, testLogger())
	data, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, 3, attempts)
}

func TestFetch_MissingFileIsNotFound(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, testLogger())
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.Equal(t, 1, attempts, "4xx must not retry")
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, testLogger())
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.True(t, apperrors.Is(err, apperrors.KindStoreUnavailable))
	assert.Equal(t, 1, attempts, "4xx must not retry")
}

func TestFetch_GSURL(t *testing.T) {
	blobs := &mocks.MockBlobStore{
		ReadFunc: func(_ context.Context, bucket, object string) ([]byte, error) {
			assert.Equal(t, "racepulse-courses", bucket)
			assert.Equal(t, "courses/evt/det.gpx", object)
			return []byte("<gpx/>"), nil
		},
	}
	f := NewFetcher(nil, blobs, testLogger())
	data, err := f.Fetch(context.Background(), "gs://racepulse-courses/courses/evt/det.gpx")
	require.NoError(t, err)
	assert.Equal(t, []byte("<gpx/>"), data)
}

func TestFetch_MalformedGSURL(t *testing.T) {
	f := NewFetcher(nil, &mocks.MockBlobStore{}, testLogger())
	_, err := f.Fetch(context.Background(), "gs://just-a-bucket")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
}
