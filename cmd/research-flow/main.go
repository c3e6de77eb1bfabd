// ABOUTME: Entry point for research-flow, the client for the research progress stream
// ABOUTME: Starts research runs, follows their progress live and renders the final report

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
    ┬─┐┌─┐┌─┐┌─┐┌─┐┬─┐┌─┐┬ ┬  ┌─┐┬  ┌─┐┬ ┬
    ├┬┘├┤ └─┐├┤ ├─┤├┬┘│  ├─┤  ├┤ │  │ ││││
    ┴└─└─┘└─┘└─┘┴ ┴┴└─└─┘┴ ┴  └  ┴─┘└─┘└┴┘
`

type rootFlags struct {
	configPath string
	apiURL     string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "research-flow",
		Short:         "Follow multi-agent research runs as they happen",
		Long:          "research-flow starts research runs on the backend and follows the Researcher, Reviewer and Synthesizer live until the report is ready.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default: $RESEARCH_FLOW_CONFIG or $XDG_CONFIG_HOME/research-flow/config.yaml)")
	pf.StringVar(&flags.apiURL, "api-url", "", "research backend URL, overrides server.api_base_url")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level, overrides logging.level")

	root.AddCommand(
		newRunCmd(flags),
		newWatchCmd(flags),
		newUploadCmd(flags),
		newStatusCmd(flags),
		newRenderCmd(),
		newVersionCmd(),
	)
	return root
}

func printBanner() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "research-flow %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
