package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/pharmovig/icsr-ingest/internal/config"
	"github.com/pharmovig/icsr-ingest/internal/database"
	"github.com/pharmovig/icsr-ingest/internal/logging"
	"github.com/pharmovig/icsr-ingest/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx := context.Background()
	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the database")
	}
	loader := database.NewPostgresLoader(pool, database.TombstonePolicy(cfg.TombstonePolicy), log)
	defer loader.Close()

	e := server.SetupRoutes(server.NewStatusService(loader))
	log.Info().Int("port", cfg.APIPort).Msg("status API starting")
	if err := e.Start(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
