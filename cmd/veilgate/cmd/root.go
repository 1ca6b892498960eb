// Package cmd provides the CLI commands for veilgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veilgate/veilgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "veilgate",
	Short: "veilgate - security-enforcing MCP proxy",
	Long: `veilgate sits between an MCP client and an MCP server, sanitizing every
JSON-RPC message that crosses it: stripping ANSI escapes and control
characters, matching configurable block/redact patterns, detecting and
vaulting credentials behind opaque placeholders, and enforcing
per-connection and per-method rate limits.

Quick start:
  1. Create a config file: veilgate.yaml
  2. Run: veilgate run

Configuration:
  Config is loaded from veilgate.yaml in the current directory,
  $HOME/.veilgate/, or /etc/veilgate/.

  Environment variables can override scalar config values with the
  VEILGATE_ prefix. Example: VEILGATE_PROXY_MAX_CONNECTIONS=50

Commands:
  run         Run the proxy
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./veilgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
