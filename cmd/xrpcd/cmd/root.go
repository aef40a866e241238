// Package cmd provides the CLI commands for xrpcd.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xrpc-run/xrpcd/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "xrpcd",
	Short: "xrpcd - XRPC dispatch server",
	Long: `xrpcd is a dispatch server for the XRPC protocol: it routes queries,
procedures, and subscriptions against a lexicon schema directory, applying
authentication, rate limiting, and request/response validation in a fixed
order before a method handler ever runs.

Quick start:
  1. Create a config file: xrpcd.yaml
  2. Point lexicons.dir at a directory of lexicon JSON documents
  3. Run: xrpcd serve

Configuration:
  Config is loaded from xrpcd.yaml in the current directory, $HOME/.xrpcd/,
  or /etc/xrpcd/.

  Environment variables can override config values with the XRPCD_ prefix.
  Example: XRPCD_SERVER_HTTP_ADDR=:9090

Commands:
  serve         Start the dispatch server
  lint-lexicon  Validate a lexicon directory without serving
  hash-password Generate an argon2id hash for a demo identity password
  version       Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./xrpcd.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
