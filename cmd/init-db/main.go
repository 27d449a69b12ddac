package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aislen404/mapabalizasv16/common/database"
	logpkg "github.com/aislen404/mapabalizasv16/common/logger"
	"github.com/aislen404/mapabalizasv16/internal/config"
	"github.com/aislen404/mapabalizasv16/internal/repository"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "init-db")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repository.InitSchema(ctx, db, logger); err != nil {
		logger.Fatal("Schema bootstrap failed", zap.Error(err))
	}
	logger.Info("Schema ready",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)
}
