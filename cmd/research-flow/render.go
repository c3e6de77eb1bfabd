// ABOUTME: render command: shows a markdown report in the terminal or exports it to HTML
// ABOUTME: Reads the report from a local file

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/research-flow/internal/report"
)

func newRenderCmd() *cobra.Command {
	var (
		htmlOut string
		style   string
		width   int
	)

	cmd := &cobra.Command{
		Use:   "render REPORT.md",
		Short: "Render a saved report in the terminal or as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := (&report.FileFetcher{Path: args[0]}).Fetch(cmd.Context())
			if err != nil {
				return err
			}

			if htmlOut != "" {
				title := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				return report.Export(htmlOut, md, title)
			}

			out, err := report.RenderTerminal(md, width, style)
			if err != nil {
				return fmt.Errorf("rendering report: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlOut, "html", "", "write an HTML page instead of printing")
	cmd.Flags().StringVar(&style, "style", "", "glamour style (dark, light, notty, ...)")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	return cmd
}
