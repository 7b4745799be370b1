package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pharmovig/icsr-ingest/internal/config"
	"github.com/pharmovig/icsr-ingest/internal/database"
	"github.com/pharmovig/icsr-ingest/internal/ingestion"
	"github.com/pharmovig/icsr-ingest/internal/logging"
	"github.com/pharmovig/icsr-ingest/internal/parser"
	"github.com/pharmovig/icsr-ingest/pkg/blob"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	root := &cobra.Command{
		Use:           "icsr-ingest",
		Short:         "ICSR safety report ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), initDBCmd(), validateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*config.Config, *database.PostgresLoader, zerolog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.LogLevel)

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, log, err
	}
	loader := database.NewPostgresLoader(pool, database.TombstonePolicy(cfg.TombstonePolicy), log)
	return cfg, loader, log, nil
}

func runCmd() *cobra.Command {
	var (
		source  string
		mode    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, parse, and load all pending source files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, loader, log, err := setup(ctx)
			if err != nil {
				return err
			}
			defer loader.Close()

			if source != "" {
				cfg.SourceURI = source
			}
			if mode != "" {
				cfg.LoadMode = mode
			}
			if workers > 0 {
				cfg.NumWorkers = workers
			}
			if cfg.SourceURI == "" {
				return fmt.Errorf("SOURCE_URI environment variable is not set")
			}
			if cfg.LoadMode != database.ModeDelta && cfg.LoadMode != database.ModeFull {
				return fmt.Errorf("invalid load mode %q", cfg.LoadMode)
			}

			if err := loader.CreateAllTables(ctx); err != nil {
				return err
			}

			start := time.Now()
			service := ingestion.NewService(cfg, loader,
				blob.ForURI(cfg.SourceURI), blob.ForURI(cfg.QuarantineURI), log)
			summary, err := service.Execute(ctx)
			if err != nil {
				return err
			}
			log.Info().Dur("took", time.Since(start)).Str("run_id", summary.RunID).Msg("ingestion run complete")

			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed", summary.Failed, summary.Discovered)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source locator: path, glob, or s3:// URI (overrides SOURCE_URI)")
	cmd.Flags().StringVar(&mode, "mode", "", "load mode: delta or full (overrides LOAD_MODE)")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel file workers (overrides NUM_WORKERS)")
	return cmd
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create all destination tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, loader, _, err := setup(ctx)
			if err != nil {
				return err
			}
			defer loader.Close()
			return loader.CreateAllTables(ctx)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check files against the configured XSD schema without loading",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.XSDSchemaPath == "" {
				return fmt.Errorf("XSD_SCHEMA_PATH is not set")
			}

			failures := 0
			for _, path := range args {
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				valid, findings, err := parser.ValidateStream(file, cfg.XSDSchemaPath)
				file.Close()
				if err != nil {
					return err
				}
				if valid {
					fmt.Printf("%s: valid\n", path)
					continue
				}
				failures++
				fmt.Printf("%s: invalid (%d finding(s))\n", path, len(findings))
				for _, f := range findings {
					fmt.Printf("  %s\n", f)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d file(s) failed validation", failures, len(args))
			}
			return nil
		},
	}
}
