// ABOUTME: upload command: uploads PDFs to the research backend without starting a run
// ABOUTME: Prints the file id and page count of each upload

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newUploadCmd(root *rootFlags) *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "upload FILE.pdf...",
		Short: "Upload PDFs and print their file IDs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			api := a.api()
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				res, err := api.UploadPDF(cmd.Context(), path, topic)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %v\n", color.RedString("✗"), err)
					continue
				}
				fmt.Fprintf(out, "%s %s  %s\n", color.GreenString("✓"), res.FileID, color.HiBlackString("%s (%d pages)", res.Filename, res.PageCount))
			}
			if failed == len(args) {
				return fmt.Errorf("none of the %d file(s) uploaded", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "research topic to attach to the uploads")
	return cmd
}
