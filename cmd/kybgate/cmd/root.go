package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "kybgate",
	Short: "kybgate orchestrates business verification flows",
	Long: `A verification orchestration service: it creates KYB sessions with the
provider, ingests signed status webhooks, and bridges the provider's
redirect callback back into the embedded flow.`,
	Version: Version,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
