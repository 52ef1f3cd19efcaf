package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ainotes",
	Short: "AI notes server: notes CRUD with semantic search and streamed chat",
	Long: `ainotes stores personal notes, keeps a vector index of them in step with
the database, and answers chat questions from the caller's own notes.`,
	// Running the binary without a subcommand starts the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("FATAL: ainotes exited with an error")
		os.Exit(1)
	}
}
