package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shogotsuneto/go-sql-streamstore"
	"github.com/shogotsuneto/go-sql-streamstore/postgres"
	"github.com/shogotsuneto/go-sql-streamstore/sqlite"
	"github.com/spf13/cobra"
)

// store is what the commands need from a backend.
type store interface {
	streamstore.Backend
	DB() *sql.DB
	AppendToStream(ctx context.Context, streamKey string, expectedVersion int, messages ...streamstore.NewStreamMessage) (streamstore.StreamHeader, error)
	SetStreamMaxAge(ctx context.Context, streamKey string, maxAge *int) error
}

func openStore(cmd *cobra.Command) (store, error) {
	driver, _ := cmd.Flags().GetString("driver")
	dsn, _ := cmd.Flags().GetString("dsn")
	prefix, _ := cmd.Flags().GetString("prefix")

	switch driver {
	case sqlite.DriverName:
		cfg := sqlite.DefaultConfig()
		if dsn != "" {
			cfg.Path = dsn
		}
		cfg.TablePrefix = prefix
		return sqlite.Open(cmd.Context(), cfg)
	case postgres.DriverName:
		cfg := postgres.DefaultConfig()
		if dsn != "" {
			cfg.ConnectionString = dsn
		}
		cfg.TablePrefix = prefix
		return postgres.Open(cmd.Context(), cfg)
	default:
		return nil, fmt.Errorf("invalid --driver %q; use sqlite|postgres", driver)
	}
}

// newInitCommand constructs the `init` command.
func newInitCommand(logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the stream tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			prefix, _ := cmd.Flags().GetString("prefix")
			driver, _ := cmd.Flags().GetString("driver")
			if driver == postgres.DriverName {
				if err := postgres.InitSchema(cmd.Context(), s.DB(), prefix); err != nil {
					return err
				}
			}
			logger.Info().Str("driver", driver).Str("prefix", prefix).Msg("schema ready")
			return nil
		},
	}
}

// newAppendCommand constructs the `append` command.
func newAppendCommand(logger zerolog.Logger) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append one message to a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			msgType, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetString("data")
			metadata, _ := cmd.Flags().GetString("metadata")
			expected, _ := cmd.Flags().GetInt("expected-version")
			if stream == "" || msgType == "" {
				return fmt.Errorf("--stream and --type are required")
			}
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data must be valid JSON")
			}
			if metadata != "" && !json.Valid([]byte(metadata)) {
				return fmt.Errorf("--metadata must be valid JSON")
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			header, err := s.AppendToStream(cmd.Context(), stream, expected, streamstore.NewStreamMessage{
				MessageID:    uuid.New(),
				Type:         msgType,
				JSONData:     data,
				JSONMetadata: metadata,
			})
			if err != nil {
				return err
			}
			logger.Info().Str("stream", stream).Int("version", header.Version).Int64("position", header.Position).Msg("appended")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "version:", header.Version)
			return nil
		},
	}
	appendCmd.Flags().String("stream", "", "Stream key")
	appendCmd.Flags().String("type", "", "Message type")
	appendCmd.Flags().String("data", "{}", "JSON payload")
	appendCmd.Flags().String("metadata", "", "JSON metadata")
	appendCmd.Flags().Int("expected-version", streamstore.ExpectedVersionAny, "Expected stream version (-2 any, -1 no stream)")
	return appendCmd
}

// newMaxAgeCommand constructs the `max-age` command.
func newMaxAgeCommand(logger zerolog.Logger) *cobra.Command {
	maxAgeCmd := &cobra.Command{
		Use:   "max-age",
		Short: "Set or clear the retention window of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			seconds, _ := cmd.Flags().GetInt("seconds")
			if stream == "" {
				return fmt.Errorf("--stream is required")
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var maxAge *int
			if seconds > 0 {
				maxAge = &seconds
			}
			if err := s.SetStreamMaxAge(cmd.Context(), stream, maxAge); err != nil {
				return err
			}
			logger.Info().Str("stream", stream).Int("seconds", seconds).Msg("max age set")
			return nil
		},
	}
	maxAgeCmd.Flags().String("stream", "", "Stream key")
	maxAgeCmd.Flags().Int("seconds", 0, "Max age in seconds (0 clears it)")
	return maxAgeCmd
}

type pageOutput struct {
	Stream     string          `json:"stream"`
	Status     string          `json:"status"`
	Direction  string          `json:"direction"`
	From       int             `json:"from"`
	Next       int             `json:"next"`
	Last       int             `json:"lastVersion"`
	IsEnd      bool            `json:"isEnd"`
	Messages   []messageOutput `json:"messages"`
	ReadTimeMs int64           `json:"readTimeMs"`
}

type messageOutput struct {
	MessageID string          `json:"messageId"`
	Version   int             `json:"version"`
	Position  int64           `json:"position"`
	Created   time.Time       `json:"createdUtc"`
	Type      string          `json:"type"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// newReadCommand constructs the `read` command.
func newReadCommand(logger zerolog.Logger) *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read one page of a stream as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			from, _ := cmd.Flags().GetInt("from")
			count, _ := cmd.Flags().GetInt("count")
			backward, _ := cmd.Flags().GetBool("backward")
			prefetch, _ := cmd.Flags().GetBool("prefetch")
			if stream == "" {
				return fmt.Errorf("--stream is required")
			}
			if backward && !cmd.Flags().Changed("from") {
				from = streamstore.StreamVersionEnd
			}

			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			reader := streamstore.NewReader(s, streamstore.WithLogger(logger))
			defer reader.Close()

			read := reader.ReadStreamForwards
			if backward {
				read = reader.ReadStreamBackwards
			}
			start := time.Now()
			page, err := read(cmd.Context(), stream, from, count, prefetch)
			if err != nil {
				return err
			}

			out := pageOutput{
				Stream:     page.StreamKey,
				Status:     page.Status.String(),
				Direction:  page.Direction.String(),
				From:       page.FromStreamVersion,
				Next:       page.NextStreamVersion,
				Last:       page.LastStreamVersion,
				IsEnd:      page.IsEnd,
				Messages:   make([]messageOutput, 0, len(page.Messages)),
				ReadTimeMs: time.Since(start).Milliseconds(),
			}
			for _, m := range page.Messages {
				data, err := m.GetJSONData(cmd.Context())
				if err != nil {
					return err
				}
				mo := messageOutput{
					MessageID: m.MessageID.String(),
					Version:   m.StreamVersion,
					Position:  m.Position,
					Created:   m.CreatedUTC,
					Type:      m.Type,
					Data:      json.RawMessage(data),
				}
				if m.JSONMetadata != "" {
					mo.Metadata = json.RawMessage(m.JSONMetadata)
				}
				out.Messages = append(out.Messages, mo)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	readCmd.Flags().String("stream", "", "Stream key")
	readCmd.Flags().Int("from", streamstore.StreamVersionStart, "Version to start from (defaults to the end when reading backward)")
	readCmd.Flags().Int("count", 20, "Maximum number of messages")
	readCmd.Flags().Bool("backward", false, "Read from newest to oldest")
	readCmd.Flags().Bool("prefetch", true, "Load payloads with the page")
	return readCmd
}
