// Package commands implements commyctl's CLI surface: a thin client over
// commyd's control-plane HTTP API.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var flags = &globalFlags{}

type globalFlags struct {
	ServerURL string
	Token     string
	Output    string
}

var rootCmd = &cobra.Command{
	Use:   "commyctl",
	Short: "commyctl - remote client for commyd's control plane",
	Long: `commyctl talks to a running commyd's control-plane API to register
and discover mesh services and trigger routing decisions.

Use "commyctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.ServerURL, "server", "http://localhost:8080", "commyd control-plane URL")
	rootCmd.PersistentFlags().StringVar(&flags.Token, "token", "", "bearer token for file endpoints")
	rootCmd.PersistentFlags().StringVarP(&flags.Output, "output", "o", "text", "output format: text, json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(routeCmd)
}
