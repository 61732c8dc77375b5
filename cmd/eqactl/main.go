package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	dataDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "eqactl",
	Short: "RSV sequencing EQA report tool",
	Long: `eqactl computes RSV sequencing EQA reports offline, directly from the
QC artifact tree, without a running server or database.

Sequencing platform columns render as "N/A" offline because the platform
declarations live in the submission store.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	Example: `  # Compute one organization's report
  eqactl report --data ./data --distribution RSV_2024_1 --organization 1234

  # Bundle every organization's report into a zip
  eqactl export --data ./data --distribution RSV_2024_1 --output reports.zip`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "data", "Root of the QC artifact tree")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
