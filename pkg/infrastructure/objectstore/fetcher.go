// Package objectstore resolves GPX file URLs to bytes. It fetches https URLs
// over plain HTTP with bounded retries and routes gs:// URLs through the blob
// store, so event details can reference either a CDN or our own archive.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	httputil "github.com/racepulse/server/pkg/infrastructure/http"
)

const (
	maxAttempts = 3
	baseBackoff = 100 * time.Millisecond
)

// Fetcher implements shared.ObjectFetcher.
type Fetcher struct {
	HTTPClient *http.Client
	Blobs      shared.BlobStore
	Logger     *slog.Logger
}

var _ shared.ObjectFetcher = (*Fetcher)(nil)

func NewFetcher(client *http.Client, blobs shared.BlobStore, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{HTTPClient: client, Blobs: blobs, Logger: logger}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "gs://") {
		return f.fetchBlob(ctx, url)
	}
	return f.fetchHTTP(ctx, url)
}

func (f *Fetcher) fetchBlob(ctx context.Context, url string) ([]byte, error) {
	if f.Blobs == nil {
		return nil, apperrors.InvalidInput("gs:// url %s requires a configured blob store", url)
	}
	rest := strings.TrimPrefix(url, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return nil, apperrors.InvalidInput("malformed gs:// url %s", url)
	}
	data, err := f.Blobs.Read(ctx, bucket, object)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "read %s", url)
	}
	return data, nil
}

// fetchHTTP retries transient failures with doubling backoff. 4xx responses
// other than 429 never retry.
func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	backoff := baseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		data, retryable, err := f.doRequest(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		if f.Logger != nil {
			f.Logger.Warn("fetch attempt failed",
				"component", "objectstore", "url", url, "attempt", attempt, "error", err)
		}
	}

	var httpErr *httputil.HTTPError
	if errors.As(lastErr, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return nil, apperrors.Wrap(apperrors.KindNotFound, lastErr, "fetch %s", url)
	}
	return nil, apperrors.StoreUnavailable(lastErr, "fetch %s", url)
}

func (f *Fetcher) doRequest(ctx context.Context, url string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, err
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return data, false, nil
}
