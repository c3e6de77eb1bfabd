// ABOUTME: status command: shows the research backend's health and connection count
// ABOUTME: Prints a short summary or the raw JSON with --json

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCmd(root *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the research backend is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.api().Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			state := color.GreenString(st.Status)
			if st.Status != "operational" {
				state = color.YellowString(st.Status)
			}
			fmt.Fprintf(out, "%s %s\n", color.HiBlackString("server:     "), a.cfg.Server.APIBaseURL)
			fmt.Fprintf(out, "%s %s\n", color.HiBlackString("status:     "), state)
			fmt.Fprintf(out, "%s %d\n", color.HiBlackString("connections:"), st.ActiveConnections)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}
