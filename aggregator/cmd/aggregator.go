// Command-line chat client for the aggregator server
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"aggregator/aggregator/config"
	"aggregator/aggregator/utils/color"
	"aggregator/aggregator/utils/logging"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	modelID   string
	statePath string
	noStream  bool
	noColor   bool
	markdown  bool
	asJSON    bool
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "aggregator",
	Short: "Chat with the models served by an aggregator server",
	Long: `aggregator is a terminal client for the AI aggregator server.

Running it without a subcommand starts an interactive chat that keeps its
session between runs. Inside the chat, lines starting with / are commands;
type /help to list them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logging.InitLoggerAt(cfg.LogDir)
		if noColor {
			color.Disable()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runChat,
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".aggregator", "session.yaml")
	}
	return filepath.Join(home, ".aggregator", "session.yaml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("AGGREGATOR_SERVER", "http://localhost:8000"), "aggregator server base URL")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "file that keeps the session id and preferences")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("AGGREGATOR_TOKEN"), "admin token for protected endpoints")

	rootCmd.Flags().StringVarP(&modelID, "model", "m", "", "model id (defaults to the stored preference)")
	rootCmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for whole answers instead of streaming")
	rootCmd.Flags().BoolVar(&markdown, "markdown", false, "render answers as markdown once complete")

	historyCmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	sessionsCmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(historyCmd, sessionsCmd, loginCmd, modelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.ColorError(err.Error()))
		os.Exit(1)
	}
}
