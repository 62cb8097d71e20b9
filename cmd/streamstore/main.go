package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	// STREAMSTORE_LOG_LEVEL applies to every command
	level, err := zerolog.ParseLevel(os.Getenv("STREAMSTORE_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	rootCmd := newRootCommand(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}

// newRootCommand constructs the root command with all subcommands attached.
func newRootCommand(logger zerolog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "streamstore",
		Short:         "Stream store CLI",
		Long:          "Create stream tables, append messages and page through streams on PostgreSQL or SQLite.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("driver", envOr("STREAMSTORE_DRIVER", "sqlite"), "Backend: sqlite|postgres")
	rootCmd.PersistentFlags().String("dsn", os.Getenv("STREAMSTORE_DSN"), "Database file (sqlite) or connection string (postgres)")
	rootCmd.PersistentFlags().String("prefix", envOr("STREAMSTORE_TABLE_PREFIX", "streamstore"), "Table prefix")

	rootCmd.AddCommand(
		newInitCommand(logger),
		newAppendCommand(logger),
		newReadCommand(logger),
		newMaxAgeCommand(logger),
	)

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
