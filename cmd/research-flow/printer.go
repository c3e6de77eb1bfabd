// ABOUTME: Line-oriented progress printer used by run and watch with --no-tui
// ABOUTME: Prints agent changes, stage moves, toasts and connection state as they happen

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/2389/research-flow/internal/progress"
	"github.com/2389/research-flow/internal/session"
	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

// printer writes session updates as plain colored lines, for terminals
// without the dashboard.
type printer struct {
	out  io.Writer
	prev workflow.State
	now  func() time.Time
}

func newPrinter(out io.Writer, initial workflow.State) *printer {
	return &printer{out: out, prev: initial, now: time.Now}
}

// follow prints updates until done closes, the channel closes or ctx ends.
func (p *printer) follow(ctx context.Context, updates <-chan session.Update, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			p.print(u)
		case <-done:
			// Flush what is already queued so the report line is not lost
			for {
				select {
				case u, ok := <-updates:
					if !ok {
						return
					}
					p.print(u)
				default:
					return
				}
			}
		}
	}
}

func (p *printer) print(u session.Update) {
	stamp := color.HiBlackString(p.now().Format("15:04:05"))

	switch u.Kind {
	case session.KindState:
		for _, agent := range progress.Workers() {
			before, _ := p.prev.Agents.Get(agent)
			after, _ := u.State.Agents.Get(agent)
			if before == after {
				continue
			}
			fmt.Fprintf(p.out, "%s %s %s %s\n", stamp, agentLabel(agent), statusLabel(after.Status), after.Message)
		}
		if u.State.Stage != p.prev.Stage {
			fmt.Fprintf(p.out, "%s %s\n", stamp, color.New(color.FgCyan).Sprintf("── %s (iteration %d/%d)", u.State.Stage, u.State.Iteration, u.State.MaxIterations))
		}

	case session.KindToast:
		fmt.Fprintf(p.out, "%s %s %s\n", stamp, levelLabel(u.Toast.Level, u.Toast.Title), u.Toast.Message)

	case session.KindConnection:
		line := u.Conn.State.String()
		if u.Conn.State == transport.StateReconnecting {
			line = fmt.Sprintf("%s (attempt %d)", line, u.Conn.Attempt)
		}
		fmt.Fprintf(p.out, "%s %s\n", stamp, color.HiBlackString("● "+line))

	case session.KindReport:
		fmt.Fprintf(p.out, "%s %s report ready (%s, %d chars)\n", stamp, color.GreenString("✓"), u.Report.Source, len(u.Report.Markdown))

	case session.KindFailed:
		fmt.Fprintf(p.out, "%s %s %v\n", stamp, color.New(color.FgRed, color.Bold).Sprint("✗"), u.Err)
	}
	p.prev = u.State
}

func agentLabel(a progress.Agent) string {
	return color.New(color.Bold).Sprintf("%-11s", a)
}

func statusLabel(s workflow.AgentStatus) string {
	text := string(s)
	switch s {
	case workflow.AgentThinking:
		return color.BlueString("%-9s", text)
	case workflow.AgentApproved:
		return color.GreenString("%-9s", text)
	case workflow.AgentRejected:
		return color.RedString("%-9s", text)
	default:
		return color.HiBlackString("%-9s", text)
	}
}

func levelLabel(l workflow.Level, title string) string {
	switch l {
	case workflow.LevelSuccess:
		return color.GreenString("[%s]", title)
	case workflow.LevelWarning:
		return color.YellowString("[%s]", title)
	case workflow.LevelError:
		return color.New(color.FgRed, color.Bold).Sprintf("[%s]", title)
	default:
		return color.CyanString("[%s]", title)
	}
}
