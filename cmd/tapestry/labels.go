package main

import (
	"io"

	"github.com/aretw0/tapestry/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the history-worthy events and their labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := tui.NewRenderer(cmd.OutOrStdout())(tui.LabelsMarkdown())
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}
