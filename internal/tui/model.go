// ABOUTME: Bubble Tea dashboard for a research session: pipeline, agent cards, toasts and the report
// ABOUTME: Driven by session updates; the report view renders markdown with glamour

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/research-flow/internal/notify"
	"github.com/2389/research-flow/internal/progress"
	"github.com/2389/research-flow/internal/report"
	"github.com/2389/research-flow/internal/session"
	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

const toastRefresh = 500 * time.Millisecond

// Options configures the dashboard.
type Options struct {
	Topic   string
	Updates <-chan session.Update
	// Toasts returns the notifications currently on screen. Polled so
	// expired toasts disappear without an update.
	Toasts func() []notify.Toast
	// Initial is shown until the first update arrives.
	Initial workflow.State
	// RenderStyle is the glamour style; empty picks one from the terminal.
	RenderStyle string
}

type updateMsg session.Update

type closedMsg struct{}

type refreshMsg struct{}

// Model is the dashboard's Bubble Tea model.
type Model struct {
	opts Options

	state  workflow.State
	conn   transport.State
	toasts []notify.Toast
	err    error

	reportMD   string
	source     report.Source
	showReport bool

	spinner  spinner.Model
	viewport viewport.Model
	width    int
	height   int
	closed   bool
}

// New creates the dashboard model.
func New(opts Options) Model {
	if opts.Toasts == nil {
		opts.Toasts = func() []notify.Toast { return nil }
	}
	if opts.Initial.MaxIterations == 0 {
		opts.Initial = workflow.Initial(0)
	}
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(lipgloss.NewStyle().Foreground(secondaryColor)))
	return Model{
		opts:     opts,
		state:    opts.Initial,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.opts.Updates), refreshToasts())
}

func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func refreshToasts() tea.Cmd {
	return tea.Tick(toastRefresh, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "r":
			if m.reportMD != "" {
				m.showReport = !m.showReport
			}
			return m, nil
		}
		if m.showReport {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(msg.Width-2, 20)
		m.viewport.Height = max(msg.Height-4, 5)
		m.renderReport()
		return m, nil

	case updateMsg:
		m.apply(session.Update(msg))
		return m, waitForUpdate(m.opts.Updates)

	case closedMsg:
		m.closed = true
		return m, nil

	case refreshMsg:
		m.toasts = m.opts.Toasts()
		return m, refreshToasts()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(u session.Update) {
	m.state = u.State
	switch u.Kind {
	case session.KindToast:
		m.toasts = m.opts.Toasts()
	case session.KindConnection:
		m.conn = u.Conn.State
	case session.KindReport:
		m.reportMD = u.Report.Markdown
		m.source = u.Report.Source
		m.showReport = true
		m.renderReport()
	case session.KindFailed:
		m.err = u.Err
	}
}

func (m *Model) renderReport() {
	if m.reportMD == "" {
		return
	}
	out, err := report.RenderTerminal(m.reportMD, m.viewport.Width-2, m.opts.RenderStyle)
	if err != nil {
		out = m.reportMD
	}
	m.viewport.SetContent(out)
}

func (m Model) View() string {
	if m.showReport {
		return m.reportView()
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(renderPipeline(m.state, m.spinner.View()))
	b.WriteString("\n\n")
	if strip := renderToasts(m.toasts, m.width); strip != "" {
		b.WriteString(strip)
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header() string {
	title := titleStyle.Render("research-flow")
	if m.opts.Topic != "" {
		title += mutedStyle.Render(" · ") + m.opts.Topic
	}
	conn := lipgloss.NewStyle().Foreground(connColor(m.conn)).Render("● " + m.conn.String())
	iter := mutedStyle.Render(fmt.Sprintf("iteration %d/%d", m.state.Iteration, m.state.MaxIterations))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "   ", conn, "   ", iter)
}

func (m Model) footer() string {
	keys := "q quit"
	if m.reportMD != "" {
		keys = "r report · " + keys
	}
	if m.closed && m.reportMD == "" {
		keys = "session ended · " + keys
	}
	return helpStyle.Render(keys)
}

func (m Model) reportView() string {
	head := titleStyle.Render("Report") + mutedStyle.Render(fmt.Sprintf(" (%s)", m.source))
	return head + "\n" + m.viewport.View() + "\n" + helpStyle.Render("↑/↓ scroll · r dashboard · q quit")
}

// renderPipeline draws the agent nodes and the arrows between them for the
// current stage.
func renderPipeline(s workflow.State, spin string) string {
	vis := workflow.VisibilityFor(s.Stage)

	researcher := agentCard(progress.AgentResearcher, s.Agents.Researcher, spin)
	row := []string{researcher}

	if vis.ReviewArrow {
		row = append(row, arrow(vis.AnimateReviewArrow))
	}
	if vis.ReviewerNode {
		row = append(row, agentCard(progress.AgentReviewer, s.Agents.Reviewer, spin))
	}
	if vis.ApproveArrow {
		row = append(row, arrow(vis.AnimateApproveArrow))
	}
	if vis.SynthesizerNode {
		row = append(row, agentCard(progress.AgentSynthesizer, s.Agents.Synthesizer, spin))
	}

	out := lipgloss.JoinHorizontal(lipgloss.Center, row...)
	if vis.RejectLoop {
		out += "\n" + rejectLoopStyle.Render("  ↺ rejected, back to the researcher")
	}
	if vis.CompleteBadge {
		out += "\n" + completeStyle.Render("✓ COMPLETE")
	}
	return out
}

func arrow(animated bool) string {
	if animated {
		return activeArrowStyle.Render(" ══▶ ")
	}
	return arrowStyle.Render(" ──▶ ")
}

func agentCard(agent progress.Agent, st workflow.AgentState, spin string) string {
	icon := "○"
	switch st.Status {
	case workflow.AgentThinking:
		icon = spin
	case workflow.AgentApproved:
		icon = "✓"
	case workflow.AgentRejected:
		icon = "✗"
	}
	color := statusColor(st.Status)
	head := lipgloss.NewStyle().Foreground(color).Bold(true).Render(icon + " " + string(agent))
	body := mutedStyle.Render(truncate(st.Message, 44))
	return nodeStyle.BorderForeground(color).Render(head + "\n" + body)
}

func renderToasts(toasts []notify.Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(toasts))
	for _, t := range toasts {
		c := levelColor(t.Level)
		text := lipgloss.NewStyle().Foreground(c).Bold(true).Render(t.Title)
		if t.Message != "" {
			text += " " + truncate(t.Message, max(width-len(t.Title)-6, 10))
		}
		lines = append(lines, toastStyle.BorderForeground(c).Render(text))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// Run shows the dashboard until the user quits or ctx ends.
func Run(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) error {
	programOpts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, programOpts...)
	p := tea.NewProgram(New(opts), programOpts...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
