// ABOUTME: Fallback report fetchers over HTTP and the local filesystem
// ABOUTME: Both read the whole resource in one call with no retries

package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// DefaultMaxReportBytes caps a fallback report read over HTTP.
const DefaultMaxReportBytes = 8 << 20

// ErrReportTooLarge means the fallback report exceeded the read limit.
var ErrReportTooLarge = errors.New("report too large")

// HTTPFetcher GETs the report from URL.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
	// MaxBytes defaults to DefaultMaxReportBytes. Larger bodies are an
	// error rather than a truncated report.
	MaxBytes int64
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating report request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", f.URL, resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxReportBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("reading report body: %w", err)
	}
	if int64(len(body)) > limit {
		return "", fmt.Errorf("%w: %s is over %d bytes", ErrReportTooLarge, f.URL, limit)
	}
	return string(body), nil
}

// FileFetcher reads the report from a local path, for backends that share a
// filesystem with the client.
type FileFetcher struct {
	Path string
}

func (f *FileFetcher) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("reading report file: %w", err)
	}
	return string(data), nil
}
