package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxglance application
var rootCmd = &cobra.Command{
	Use:   "inboxglance",
	Short: "Gmail OAuth backend that shows the newest messages of your inboxes",
	Long: `inboxglance connects Gmail accounts through Google OAuth and serves
their newest messages to a web frontend.

It runs in one of two modes:
  - accounts: any number of connected accounts, listed together
  - session:  one signed-in user per browser session`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxglance version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
