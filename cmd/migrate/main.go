package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/iac-studio/envforge/pkg/config"
	"github.com/iac-studio/envforge/pkg/database"
	"github.com/iac-studio/envforge/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for migrations")
	}

	db, err := database.OpenPostgres(context.Background(), cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := runMigrations(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
