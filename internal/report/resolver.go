// ABOUTME: Decides where the final report comes from on a terminal event
// ABOUTME: Inline payload first, then a single fallback fetch of the well-known resource

package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/research-flow/internal/progress"
)

var (
	// ErrNoReport means the event is not one that yields a report: it is
	// not terminal, or it is a Synthesizer/done without inline content.
	ErrNoReport = errors.New("event carries no report")

	// ErrReportUnavailable means a System/completed event had no inline
	// report and the fallback read failed.
	ErrReportUnavailable = errors.New("report unavailable")
)

// Source records where a resolved report came from.
type Source string

const (
	SourceCompleted   Source = "completed"
	SourceSynthesizer Source = "synthesizer"
	SourceFallback    Source = "fallback"
)

// Result is a resolved report.
type Result struct {
	Markdown string
	Source   Source
}

// Fetcher reads the well-known report resource.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context) (string, error) {
	return f(ctx)
}

// Inline extracts a report carried by the event itself.
func Inline(e progress.Event) (Result, bool) {
	switch {
	case e.Agent == progress.AgentSystem && e.Status == progress.StatusCompleted:
		if r := e.FinalReport(); r != "" {
			return Result{Markdown: r, Source: SourceCompleted}, true
		}
		if r := e.ReportContent(); r != "" {
			return Result{Markdown: r, Source: SourceCompleted}, true
		}
	case e.Agent == progress.AgentSynthesizer && e.Status == progress.StatusDone:
		if r := e.ReportContent(); r != "" {
			return Result{Markdown: r, Source: SourceSynthesizer}, true
		}
	}
	return Result{}, false
}

// Resolver turns terminal events into reports.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewResolver creates a resolver. A nil fetcher disables the fallback read.
func NewResolver(fetcher Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.With("component", "report"),
	}
}

// Resolve returns the report for e. The fallback is read at most once per
// call and only for a System/completed event without inline content.
func (r *Resolver) Resolve(ctx context.Context, e progress.Event) (Result, error) {
	if res, ok := Inline(e); ok {
		r.logger.Info("report received inline", "source", res.Source, "length", len(res.Markdown))
		return res, nil
	}

	if e.Agent != progress.AgentSystem || e.Status != progress.StatusCompleted {
		return Result{}, ErrNoReport
	}

	r.logger.Warn("completion carried no report, reading fallback")
	if r.fetcher == nil {
		return Result{}, fmt.Errorf("%w: no fallback configured", ErrReportUnavailable)
	}

	body, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logger.Error("fallback report read failed", "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrReportUnavailable, err)
	}
	if strings.TrimSpace(body) == "" {
		r.logger.Error("fallback report is empty")
		return Result{}, fmt.Errorf("%w: fallback report is empty", ErrReportUnavailable)
	}

	r.logger.Info("report loaded from fallback", "length", len(body))
	return Result{Markdown: body, Source: SourceFallback}, nil
}
