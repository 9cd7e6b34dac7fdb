// Package cmd wires the printdesk command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/printdesk/printdesk/internal/log"
)

var (
	flagVerbose bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "printdesk",
	Short: "Knowledge-base backend for the print-shop assistant",
	Long: `printdesk manages the retrieval-augmented knowledge base behind the
print-shop Telegram assistant: document ingestion, vector search and the
conversation flow.

Documents are chunked, embedded via the Gemini API and stored in
PostgreSQL with pgvector. Requires GEMINI_API_KEY and a reachable
database (DATABASE_URL or PRINTDESK_POSTGRES_* variables).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "log in JSON format")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLog})
}
