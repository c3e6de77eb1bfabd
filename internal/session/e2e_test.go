// ABOUTME: End-to-end tests running a session against the in-process mock backend
// ABOUTME: Covers the inline report, the fallback file and recovery after a dropped socket

package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-flow/internal/mockbackend"
	"github.com/2389/research-flow/internal/report"
	"github.com/2389/research-flow/internal/research"
	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

type backend struct {
	mock *mockbackend.Server
	srv  *httptest.Server
	api  *research.Client
}

func startBackend(t *testing.T, flow mockbackend.FlowOptions) *backend {
	t.Helper()
	mock := mockbackend.New(mockbackend.Options{Flow: flow})
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(func() {
		mock.Close()
		srv.Close()
	})
	return &backend{mock: mock, srv: srv, api: research.NewClient(srv.URL, nil, nil)}
}

func (b *backend) wsURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + mockbackend.ProgressPath
}

func startSession(t *testing.T, b *backend) *Session {
	t.Helper()
	s, err := New(Options{
		Topic: "fusion",
		Transport: transport.Options{
			URL:            b.wsURL(),
			ReconnectDelay: 10 * time.Millisecond,
		},
		Policy:  workflow.Policy{ApproveDelay: 10 * time.Millisecond, RejectDelay: 10 * time.Millisecond},
		Fetcher: &report.HTTPFetcher{URL: b.srv.URL + mockbackend.ReportPath},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return b.mock.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)
	return s
}

func TestE2E_InlineReport(t *testing.T) {
	b := startBackend(t, mockbackend.FlowOptions{Report: "# R", Rejections: 1})
	s := startSession(t, b)

	_, err := b.api.Send(context.Background(), "fusion")
	require.NoError(t, err)

	res, err := s.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, report.Result{Markdown: "# R", Source: report.SourceSynthesizer}, res)

	st := s.State()
	assert.Equal(t, workflow.StageComplete, st.Stage)
	assert.Equal(t, "# R", st.Report)
	assert.Equal(t, 2, st.Iteration)
	assert.Equal(t, workflow.AgentApproved, st.Agents.Synthesizer.Status)
}

func TestE2E_FallbackReport(t *testing.T) {
	b := startBackend(t, mockbackend.FlowOptions{Report: "# From disk", OmitInlineReport: true})
	s := startSession(t, b)

	_, err := b.api.Send(context.Background(), "fusion")
	require.NoError(t, err)

	res, err := s.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, report.Result{Markdown: "# From disk", Source: report.SourceFallback}, res)
}

func TestE2E_RecoversAfterDroppedSocket(t *testing.T) {
	b := startBackend(t, mockbackend.FlowOptions{Report: "# R"})
	s := startSession(t, b)

	b.mock.DropConnections()

	require.Eventually(t, func() bool {
		for _, toast := range s.Toasts() {
			if toast.Title == "Reconnected" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return b.mock.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, transport.StateConnected, s.Connection())

	_, err := b.api.Send(context.Background(), "fusion")
	require.NoError(t, err)

	res, err := s.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "# R", res.Markdown)
}

func TestE2E_FailedResearchNotifies(t *testing.T) {
	b := startBackend(t, mockbackend.FlowOptions{Rejections: 3, MaxIterations: 3})
	s := startSession(t, b)

	_, err := b.api.Send(context.Background(), "fusion")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, toast := range s.Toasts() {
			if toast.Level == workflow.LevelError && strings.Contains(toast.Message, "failed after 3 attempts") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, s.State().HasReport())
}
