// Package ctl implements the vocalctl command-line interface using Cobra.
// Each subcommand maps to a daemon API operation (list, pull, rm, etc.).
package ctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagAddr string

var rootCmd = &cobra.Command{
	Use:   "vocalctl",
	Short: "vocalctl controls a running vocald daemon",
	Long: `vocalctl talks to the vocald speech daemon over its HTTP API:
list and inspect models, download or remove them, and watch what is
currently loaded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", envOr("VOCALD_ADDR", "127.0.0.1:8088"), "daemon address")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *Client { return NewClient(flagAddr) }

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
