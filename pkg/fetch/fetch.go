package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrTooLarge indicates the remote document exceeded the configured size.
var ErrTooLarge = errors.New("remote document too large")

// Fetcher downloads a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches documents over HTTP with a timeout and size limit.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   zerolog.Logger
}

// NewHTTPFetcher constructs a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client, timeout time.Duration, maxBytes int64, logger zerolog.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	return &HTTPFetcher{
		client:   client,
		timeout:  timeout,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch returns the body of url or an error for non-2xx responses.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: %s", url, res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	f.logger.Debug().Str("url", url).Int("bytes", len(body)).Dur("duration", time.Since(start)).Msg("document fetched")
	return body, nil
}
