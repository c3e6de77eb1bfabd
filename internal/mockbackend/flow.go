// ABOUTME: Scripted research flow emitted by the mock backend
// ABOUTME: Researcher/Reviewer loop with configurable rejections, then synthesis and completion

package mockbackend

import (
	"fmt"
	"strings"
	"time"

	"github.com/2389/research-flow/internal/progress"
)

// DefaultReport is served when FlowOptions.Report is empty.
const DefaultReport = `# Synthesis Report

## Executive Summary

Mock findings for %s.

## Conclusions

Nothing here was researched.
`

// FlowOptions shapes the scripted flow.
type FlowOptions struct {
	// StepDelay is the pause before each event. Zero emits back to back.
	StepDelay time.Duration
	// Rejections is how many reviews fail before one passes. At or above
	// MaxIterations the flow ends with a System error.
	Rejections    int
	MaxIterations int
	// Report is the synthesis markdown; DefaultReport when empty.
	Report string
	// OmitInlineReport leaves report_content and final_report out of the
	// terminal events so clients must fall back to the output file.
	OmitInlineReport bool
}

func (o FlowOptions) withDefaults(topic string) FlowOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 3
	}
	if o.Report == "" {
		o.Report = fmt.Sprintf(DefaultReport, topic)
	}
	return o
}

// Script returns the events of one research run on topic, in order.
func Script(topic string, opts FlowOptions) []progress.Event {
	opts = opts.withDefaults(topic)
	maxIter := opts.MaxIterations

	events := []progress.Event{
		progress.New(progress.AgentSystem, progress.StatusStarted, "Starting research flow for: "+topic),
	}

	approvedAt := 0
	for iteration := 1; iteration <= maxIter; iteration++ {
		first := progress.StatusThinking
		if iteration > 1 {
			first = progress.StatusRetry
		}
		researched := fmt.Sprintf("Findings on %s, pass %d.", topic, iteration)
		events = append(events,
			progress.New(progress.AgentResearcher, first, fmt.Sprintf("Starting research iteration %d...", iteration)).WithIteration(iteration),
			progress.New(progress.AgentResearcher, progress.StatusWorking, "Gathering information from web and ArXiv papers...").WithIteration(iteration),
			progress.New(progress.AgentResearcher, progress.StatusDone, fmt.Sprintf("Research completed (%d chars)", len(researched))).
				WithIteration(iteration).
				WithDetail("output_length", len(researched)),
			progress.New(progress.AgentReviewer, progress.StatusThinking, fmt.Sprintf("Evaluating research quality (attempt %d)...", iteration)).WithIteration(iteration),
			progress.New(progress.AgentReviewer, progress.StatusWorking, "Analyzing research papers and validating quality...").WithIteration(iteration),
		)

		if iteration > opts.Rejections {
			events = append(events,
				progress.New(progress.AgentReviewer, progress.StatusDone, "Research approved! Proceeding to synthesis...").
					WithIteration(iteration).
					WithDetail("approved", true),
			)
			approvedAt = iteration
			break
		}
		events = append(events,
			progress.New(progress.AgentReviewer, progress.StatusRetry, fmt.Sprintf("Research rejected. Retry %d/%d", iteration, maxIter)).
				WithIteration(iteration).
				WithDetail("approved", false).
				WithDetail("feedback", "Needs more recent sources."),
		)
	}

	if approvedAt == 0 {
		return append(events,
			progress.New(progress.AgentReviewer, progress.StatusError, fmt.Sprintf("Maximum retry limit reached (%d attempts)", maxIter)).WithIteration(maxIter),
			progress.New(progress.AgentSystem, progress.StatusError, fmt.Sprintf("Research failed after %d attempts.", maxIter)).
				WithDetail("total_attempts", maxIter),
		)
	}

	done := progress.New(progress.AgentSynthesizer, progress.StatusDone, "Synthesis complete! Report saved to output/synthesis_report.md").
		WithDetail("total_iterations", approvedAt).
		WithDetail("output_file", ReportPath)
	completed := progress.New(progress.AgentSystem, progress.StatusCompleted,
		fmt.Sprintf("All tasks completed successfully after %d iteration(s)!", approvedAt)).
		WithDetail("total_iterations", approvedAt)
	if !opts.OmitInlineReport {
		done = done.WithDetail(progress.DetailReportContent, opts.Report)
		completed = completed.WithDetail(progress.DetailFinalReport, opts.Report)
	}

	return append(events,
		progress.New(progress.AgentSynthesizer, progress.StatusThinking, "Starting synthesis report generation...").
			WithDetail("iterations_required", approvedAt),
		progress.New(progress.AgentSynthesizer, progress.StatusWorking, "Analyzing patterns and synthesizing findings..."),
		done,
		completed,
	)
}

// reportReady reports whether e is the point where the output file exists.
func reportReady(e progress.Event) bool {
	return e.Agent == progress.AgentSynthesizer && e.Status == progress.StatusDone
}

func topicFromFilename(name string) string {
	return strings.TrimSuffix(name, ".pdf")
}
