// Command buffr serves the buffr API and offers offline helpers for
// templates and tools.
//
// Usage:
//
//	API_KEY=... ANTHROPIC_API_KEY=sk-... buffr serve
//	buffr resolve --project <id> "Status of {{project.name}}: {{tool:work_items}}"
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/buffr/internal/config"
)

var Version = "dev"

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "buffr",
		Short:         "buffr - project sessions, prompt templates and live tool data",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(resolveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile loads path into the environment. Variables already set win.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// newLogger builds the process logger. Development mode writes a console
// format to stderr.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(out).With().Timestamp().Caller().Logger()

	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Logger = logger
	return logger
}
