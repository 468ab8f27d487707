package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/document"
	"github.com/orrn/printdesk/internal/pages"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pdf>",
	Short: "Show how a PDF would be offered for printing",
	Long: `Inspect reads a PDF the same way uploads are read and prints its page
count, the inferred orientation and the default page selection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		geometry, err := document.Inspect(args[0])
		if err != nil {
			return err
		}

		sel := pages.New(len(geometry))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "File:        %s\n", args[0])
		fmt.Fprintf(out, "Pages:       %d\n", len(geometry))
		fmt.Fprintf(out, "Orientation: %s\n", core.InferOrientation(geometry))
		fmt.Fprintf(out, "Selection:   %s\n", sel)
		fmt.Fprintf(out, "Duplex:      %t\n", len(geometry) > 1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
