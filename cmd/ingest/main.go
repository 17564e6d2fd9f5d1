package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cukesight/backend/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		utils.GetLogger().WithError(err).Fatal("Command failed")
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:   "cukesight",
	Short: "Ingest Cucumber reports and maintain the report stores",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		utils.GetLogger().SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level ("+strings.Join(logLevels(), ", ")+"), overrides LOG_LEVEL")

	rootCmd.AddCommand(ingestCmd, reconcileCmd)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}
	return levels
}

// exitCode is non-zero when a command finished with partial failures.
var exitCode int

func fail() {
	exitCode = 1
}
