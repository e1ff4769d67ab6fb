// Package cli implements the vitalgate command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitalgate/vitalgate/internal/api"
	"github.com/vitalgate/vitalgate/internal/daemon"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vitalgate",
	Short: "Vitals gateway daemon and tools",
	Long: `vitalgate derives a player's gamified vitals snapshot — Health, Mana,
Stamina, Essence, and Shield pools — from their financial transactions
and cashflow configuration, and serves it over HTTP for the dashboard.`,
	Version: api.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config.toml (default ~/.vitalgate/config.toml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads config and wires a daemon for one-shot commands.
// Callers must Close it.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}
