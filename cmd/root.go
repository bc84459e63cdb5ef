package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "idserver",
	Short: "Memoist identity service",
	Long: `idserver is the Memoist user-identity service: account management,
credential authentication and JWT session tokens over HTTP.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
