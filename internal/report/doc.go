// ABOUTME: Package report resolves, renders and exports the final research report
// ABOUTME: Resolution prefers inline payloads over the fallback resource

// Package report owns the final Markdown report.
//
// Resolver.Resolve looks at a terminal event and returns the report from,
// in order: the System/completed details (final_report, then
// report_content), the Synthesizer/done report_content, or a single read of
// the well-known fallback resource through a Fetcher. The fallback is only
// consulted for System/completed; it is never retried.
//
// RenderTerminal draws the report with glamour, RenderHTML produces a
// standalone page with goldmark, and Export writes either form to disk.
package report
