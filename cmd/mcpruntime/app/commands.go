// Package app provides the mcpruntime command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpruntime/core/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mcpruntime",
	Short: "mcpruntime runs a standalone MCP session server",
	Long: `mcpruntime is a headless MCP session server: it accepts sessions over
stdio or WebSocket, authenticates and authorizes every request, executes
registered tools under bounded resources, and records every decision to
an audit trail.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd builds the mcpruntime root command and its subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.SilenceUsage = true
	return rootCmd
}
