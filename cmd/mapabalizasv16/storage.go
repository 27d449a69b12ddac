package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/aislen404/mapabalizasv16/common/database"
	"github.com/aislen404/mapabalizasv16/internal/config"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"go.uber.org/zap"
)

// openStorage builds the repositories when persistence is enabled. A database
// that does not answer at boot keeps its pool: every save and read retries it,
// degrading per request until it comes back.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, repository.BalizasRepository, repository.HistoryRepository) {
	if !cfg.DBEnabled {
		logger.Info("DB disabled, running without persistence")
		return nil, nil, nil
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Warn("DB enabled but pool could not be created, running without persistence", zap.Error(err))
		return nil, nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.Ping(pingCtx, db); err != nil {
		logger.Warn("DB not reachable yet, will retry on each request", zap.Error(err))
	} else {
		logger.Info("DB enabled", zap.String("database", cfg.Database.Database))
	}

	tagging := repository.TagLiteral
	if cfg.ChangeTagging == config.TaggingStatus {
		tagging = repository.TagByStatus
	}
	return db,
		repository.NewPostgresBalizasRepository(db, tagging, logger),
		repository.NewPostgresHistoryRepository(db, logger)
}
