package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "printdesk",
	Short: "Self-service print desk for a shared CUPS printer",
	Long: `Printdesk lets users upload documents, pick pages and print options,
and follow their jobs on a shared printer until the last page is out.

Documents other than PDF are converted with LibreOffice. Job progress is
read from the print system's notification log.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "printdesk.yaml", "config file; PRINTDESK_* environment variables override it",
	)
	rootCmd.AddCommand(versionCmd)
}
