// ABOUTME: Tests for the research-flow commands run against the in-process mock backend
// ABOUTME: Covers run with export, upload, status, render, version and the printer

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-flow/internal/mockbackend"
	"github.com/2389/research-flow/internal/notify"
	"github.com/2389/research-flow/internal/session"
	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("RESEARCH_FLOW_CONFIG", "")
}

func startMock(t *testing.T, flow mockbackend.FlowOptions) (*mockbackend.Server, *httptest.Server) {
	t.Helper()
	mock := mockbackend.New(mockbackend.Options{Flow: flow})
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(func() {
		mock.Close()
		srv.Close()
	})
	return mock, srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_PlainModeExportsReport(t *testing.T) {
	isolateConfig(t)
	mock, srv := startMock(t, mockbackend.FlowOptions{Report: "# Fusion\n\nIt works."})
	export := filepath.Join(t.TempDir(), "out", "report.html")

	out, err := execute(t, "--api-url", srv.URL, "--log-level", "error",
		"run", "--topic", "fusion", "--no-tui", "--style", "notty", "--export", export)
	require.NoError(t, err)

	assert.Contains(t, out, "Research finished")
	assert.Contains(t, out, "report ready")
	assert.Contains(t, out, "It works.")
	assert.Equal(t, []string{"fusion"}, mock.Topics())

	html, err := os.ReadFile(export)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1")
}

func TestRun_RequiresTopic(t *testing.T) {
	isolateConfig(t)
	_, err := execute(t, "run", "--no-tui")
	assert.ErrorContains(t, err, "--topic is required")
}

func TestRun_AllUploadsFail(t *testing.T) {
	isolateConfig(t)
	mock, srv := startMock(t, mockbackend.FlowOptions{})
	notPDF := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notPDF, []byte("x"), 0644))

	out, err := execute(t, "--api-url", srv.URL, "--log-level", "error",
		"run", "--topic", "fusion", "--no-tui", "--pdf", notPDF)

	assert.ErrorContains(t, err, "no pdf could be uploaded")
	assert.Empty(t, mock.Topics())
	_ = out
}

func TestUploadAndStatus(t *testing.T) {
	isolateConfig(t)
	mock, srv := startMock(t, mockbackend.FlowOptions{})
	pdf := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 /Type /Page"), 0644))

	out, err := execute(t, "--api-url", srv.URL, "--log-level", "error", "upload", pdf)
	require.NoError(t, err)
	assert.Contains(t, out, "paper.pdf (1 pages)")
	require.Len(t, mock.Uploads(), 1)
	assert.Contains(t, out, mock.Uploads()[0].FileID)

	out, err = execute(t, "--api-url", srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "operational")
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(md, []byte("# Title\n\nBody text."), 0644))

	out, err := execute(t, "render", md, "--style", "notty")
	require.NoError(t, err)
	assert.Contains(t, out, "Body text.")

	htmlPath := filepath.Join(dir, "report.html")
	_, err = execute(t, "render", md, "--html", htmlPath)
	require.NoError(t, err)
	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>report</title>")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "research-flow dev"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "solid-state-batteries", slug("Solid State Batteries!"))
	assert.Equal(t, "report", slug("???"))
	assert.LessOrEqual(t, len(slug(strings.Repeat("long topic ", 20))), 48)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	initial := workflow.Initial(3)
	p := newPrinter(&buf, initial)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }

	next := initial
	next.Agents.Researcher = workflow.AgentState{Status: workflow.AgentApproved, Message: "Research completed"}
	next.Stage = workflow.StageReviewDecision

	p.print(session.Update{Kind: session.KindState, State: next})
	p.print(session.Update{Kind: session.KindConnection, State: next, Conn: transport.Change{State: transport.StateReconnecting, Attempt: 2}})
	p.print(session.Update{Kind: session.KindToast, State: next, Toast: notify.Toast{Level: workflow.LevelWarning, Title: "Connection lost", Message: "Reconnecting"}})

	out := buf.String()
	assert.Contains(t, out, "15:04:05 Researcher  approved  Research completed")
	assert.Contains(t, out, "── review-decision (iteration 1/3)")
	assert.Contains(t, out, "reconnecting (attempt 2)")
	assert.Contains(t, out, "[Connection lost] Reconnecting")
	assert.NotContains(t, out, "Reviewer", "unchanged agents are not printed")
}
