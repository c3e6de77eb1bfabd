// ABOUTME: Tests for report resolution order and fallback behavior
// ABOUTME: Counts fetcher calls to prove inline reports skip the fallback

package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-flow/internal/progress"
)

type countingFetcher struct {
	calls atomic.Int32
	body  string
	err   error
}

func (f *countingFetcher) Fetch(context.Context) (string, error) {
	f.calls.Add(1)
	return f.body, f.err
}

func completed() progress.Event {
	return progress.New(progress.AgentSystem, progress.StatusCompleted, "Research completed successfully!")
}

func TestResolve_FinalReportSkipsFallback(t *testing.T) {
	f := &countingFetcher{body: "fallback"}
	r := NewResolver(f, nil)

	res, err := r.Resolve(context.Background(), completed().WithDetail(progress.DetailFinalReport, "X"))
	require.NoError(t, err)

	assert.Equal(t, "X", res.Markdown)
	assert.Equal(t, SourceCompleted, res.Source)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestResolve_FinalReportWinsOverReportContent(t *testing.T) {
	e := completed().
		WithDetail(progress.DetailReportContent, "content").
		WithDetail(progress.DetailFinalReport, "final")

	res, err := NewResolver(nil, nil).Resolve(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "final", res.Markdown)
}

func TestResolve_CompletedReportContent(t *testing.T) {
	f := &countingFetcher{}
	res, err := NewResolver(f, nil).Resolve(context.Background(),
		completed().WithDetail(progress.DetailReportContent, "# R"))
	require.NoError(t, err)

	assert.Equal(t, "# R", res.Markdown)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestResolve_SynthesizerDone(t *testing.T) {
	f := &countingFetcher{body: "fallback"}
	r := NewResolver(f, nil)

	e := progress.New(progress.AgentSynthesizer, progress.StatusDone, "").
		WithDetail(progress.DetailReportContent, "# R")
	res, err := r.Resolve(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, Result{Markdown: "# R", Source: SourceSynthesizer}, res)

	// Without content there is nothing to deliver and no fallback
	_, err = r.Resolve(context.Background(), progress.New(progress.AgentSynthesizer, progress.StatusDone, ""))
	assert.ErrorIs(t, err, ErrNoReport)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestResolve_SynthesizerFinalReportIgnored(t *testing.T) {
	e := progress.New(progress.AgentSynthesizer, progress.StatusDone, "").
		WithDetail(progress.DetailFinalReport, "not read here")

	_, err := NewResolver(nil, nil).Resolve(context.Background(), e)
	assert.ErrorIs(t, err, ErrNoReport)
}

func TestResolve_NonTerminalEvent(t *testing.T) {
	f := &countingFetcher{body: "fallback"}
	_, err := NewResolver(f, nil).Resolve(context.Background(),
		progress.New(progress.AgentReviewer, progress.StatusDone, ""))

	assert.ErrorIs(t, err, ErrNoReport)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestResolve_FallbackOnce(t *testing.T) {
	f := &countingFetcher{body: "# From disk"}
	res, err := NewResolver(f, nil).Resolve(context.Background(), completed())
	require.NoError(t, err)

	assert.Equal(t, Result{Markdown: "# From disk", Source: SourceFallback}, res)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestResolve_FallbackFailure(t *testing.T) {
	cause := errors.New("connection refused")
	f := &countingFetcher{err: cause}

	_, err := NewResolver(f, nil).Resolve(context.Background(), completed())

	assert.ErrorIs(t, err, ErrReportUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(1), f.calls.Load(), "no retries")
}

func TestResolve_EmptyFallbackIsUnavailable(t *testing.T) {
	f := &countingFetcher{body: "  \n"}
	_, err := NewResolver(f, nil).Resolve(context.Background(), completed())
	assert.ErrorIs(t, err, ErrReportUnavailable)
}

func TestResolve_NoFetcher(t *testing.T) {
	_, err := NewResolver(nil, nil).Resolve(context.Background(), completed())
	assert.ErrorIs(t, err, ErrReportUnavailable)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/output/synthesis_report.md" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("# Report\n\nBody"))
	}))
	defer srv.Close()

	body, err := (&HTTPFetcher{URL: srv.URL + "/output/synthesis_report.md"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nBody", body)

	_, err = (&HTTPFetcher{URL: srv.URL + "/missing"}).Fetch(context.Background())
	assert.ErrorContains(t, err, "status 404")
}

func TestHTTPFetcher_RejectsOversizedReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	body, err := (&HTTPFetcher{URL: srv.URL, MaxBytes: 10}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", body, "a body at the limit is read whole")

	_, err = (&HTTPFetcher{URL: srv.URL, MaxBytes: 9}).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrReportTooLarge)

	_, err = NewResolver(&HTTPFetcher{URL: srv.URL, MaxBytes: 9}, nil).Resolve(context.Background(), completed())
	assert.ErrorIs(t, err, ErrReportUnavailable)
	assert.ErrorIs(t, err, ErrReportTooLarge)
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthesis_report.md")
	require.NoError(t, os.WriteFile(path, []byte("# Local"), 0o644))

	body, err := (&FileFetcher{Path: path}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Local", body)

	_, err = (&FileFetcher{Path: filepath.Join(t.TempDir(), "nope.md")}).Fetch(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
