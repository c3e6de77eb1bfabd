// ABOUTME: run and watch commands: start research, follow progress and save the report
// ABOUTME: Follows a session with the dashboard or the plain printer next to the metrics server

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/research-flow/internal/report"
	"github.com/2389/research-flow/internal/research"
	"github.com/2389/research-flow/internal/session"
	"github.com/2389/research-flow/internal/tui"
)

// errStopped is returned when the user leaves before the report arrives.
var errStopped = errors.New("stopped before the report arrived")

type followFlags struct {
	noTUI  bool
	export string
	style  string
}

func (f *followFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noTUI, "no-tui", false, "print progress lines instead of the dashboard")
	cmd.Flags().StringVar(&f.export, "export", "", "write the report to this file (.html renders it)")
	cmd.Flags().StringVar(&f.style, "style", "", "glamour style for the report (dark, light, notty, ...)")
}

func newRunCmd(root *rootFlags) *cobra.Command {
	var (
		topic  string
		pdfs   []string
		follow followFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a research run and follow it live",
		Example: `  research-flow run --topic "solid state batteries"
  research-flow run --topic "fusion" --pdf paper1.pdf --pdf paper2.pdf --export report.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(topic) == "" {
				return errors.New("--topic is required")
			}
			return runResearch(cmd.Context(), root, follow, research.Request{Topic: topic, PDFs: pdfs}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "research topic")
	cmd.Flags().StringArrayVar(&pdfs, "pdf", nil, "PDF to upload as context (repeatable)")
	follow.register(cmd)
	return cmd
}

func newWatchCmd(root *rootFlags) *cobra.Command {
	var follow followFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach to the progress stream of a run started elsewhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd.Context(), root, follow, research.Request{}, cmd.OutOrStdout())
		},
	}
	follow.register(cmd)
	return cmd
}

// runResearch connects a session, starts the run when req has a topic, and
// follows it until the report is in.
func runResearch(ctx context.Context, root *rootFlags, f followFlags, req research.Request, out io.Writer) error {
	var logOut io.Writer = os.Stderr
	if !f.noTUI {
		// The dashboard owns the terminal
		logOut = io.Discard
	}

	a, err := loadApp(root, logOut)
	if err != nil {
		return err
	}
	defer a.close()

	if f.noTUI {
		printBanner()
	}

	s, err := a.newSession(req.Topic)
	if err != nil {
		return err
	}
	defer s.Close()

	updates, _ := s.Subscribe(ctx)

	// Connect before starting so no early event is missed
	if err := s.Start(ctx); err != nil {
		a.logger.Warn("progress stream not connected yet, retrying in the background", "error", err)
	}

	if req.Topic != "" {
		res, err := a.api().Start(ctx, req, s.Notify)
		if err != nil {
			return fmt.Errorf("starting research: %w", err)
		}
		a.logger.Info("research started", "topic", req.Topic, "status", res.Status, "session_id", s.ID(), "research_id", res.ResearchID)
	}

	res, err := followSession(ctx, a, s, updates, f, out)
	if err != nil {
		return err
	}
	return saveReport(a, f, req.Topic, res, out)
}

func followSession(ctx context.Context, a *app, s *session.Session, updates <-chan session.Update, f followFlags, out io.Writer) (report.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.serveMetrics(gctx)
	})
	g.Go(func() error {
		defer cancel()
		if f.noTUI {
			newPrinter(out, s.State()).follow(gctx, updates, s.Done())
			return nil
		}
		return tui.Run(gctx, tui.Options{
			Topic:       s.Topic(),
			Updates:     updates,
			Toasts:      s.Toasts,
			Initial:     s.State(),
			RenderStyle: f.style,
		})
	})
	if err := g.Wait(); err != nil {
		return report.Result{}, err
	}

	select {
	case <-s.Done():
		return s.Wait(context.Background())
	default:
		return report.Result{}, errStopped
	}
}

// saveReport writes the report where the flags and config ask for it. In
// plain mode it is also printed.
func saveReport(a *app, f followFlags, topic string, res report.Result, out io.Writer) error {
	title := topic
	if title == "" {
		title = "Research report"
	}

	if f.noTUI {
		rendered, err := report.RenderTerminal(res.Markdown, 100, f.style)
		if err != nil {
			rendered = res.Markdown
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, rendered)
	}

	if f.export != "" {
		if err := report.Export(f.export, res.Markdown, title); err != nil {
			return fmt.Errorf("exporting report: %w", err)
		}
		a.logger.Info("report exported", "path", f.export)
	}

	if dir := a.cfg.Report.OutputDir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
		name := fmt.Sprintf("%s-%s.md", slug(title), time.Now().Format("20060102-150405"))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(res.Markdown), 0644); err != nil {
			return fmt.Errorf("saving report: %w", err)
		}
		a.logger.Info("report saved", "path", path)
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		return "report"
	}
	return s
}
