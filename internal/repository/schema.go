package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// schemaStatements are applied one by one; every statement is idempotent
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS balizas (
		id          VARCHAR(255) PRIMARY KEY,
		lat         DECIMAL(10, 8) NOT NULL,
		lon         DECIMAL(11, 8) NOT NULL,
		status      VARCHAR(50) NOT NULL DEFAULT 'active',
		carretera   VARCHAR(255),
		pk          VARCHAR(100),
		sentido     VARCHAR(100),
		orientacion VARCHAR(100),
		comunidad   VARCHAR(255),
		provincia   VARCHAR(255),
		municipio   VARCHAR(255),
		first_seen  TIMESTAMPTZ,
		last_seen   TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS baliza_history (
		id          SERIAL PRIMARY KEY,
		baliza_id   VARCHAR(255) NOT NULL REFERENCES balizas(id) ON DELETE CASCADE,
		status      VARCHAR(50),
		lat         DECIMAL(10, 8),
		lon         DECIMAL(11, 8),
		carretera   VARCHAR(255),
		pk          VARCHAR(100),
		sentido     VARCHAR(100),
		orientacion VARCHAR(100),
		comunidad   VARCHAR(255),
		provincia   VARCHAR(255),
		municipio   VARCHAR(255),
		changed_at  TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		change_type VARCHAR(50) NOT NULL CHECK (change_type IN ('new', 'status_change', 'info_update'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_balizas_status ON balizas(status)`,
	`CREATE INDEX IF NOT EXISTS idx_balizas_provincia ON balizas(provincia)`,
	`CREATE INDEX IF NOT EXISTS idx_balizas_comunidad ON balizas(comunidad)`,
	`CREATE INDEX IF NOT EXISTS idx_balizas_carretera ON balizas(carretera)`,
	`CREATE INDEX IF NOT EXISTS idx_balizas_last_seen ON balizas(last_seen)`,
	`CREATE INDEX IF NOT EXISTS idx_history_baliza_id ON baliza_history(baliza_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_changed_at ON baliza_history(changed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_history_change_type ON baliza_history(change_type)`,
	`CREATE OR REPLACE FUNCTION balizas_touch_updated_at() RETURNS TRIGGER AS $$
	BEGIN
		IF NEW.updated_at IS NOT DISTINCT FROM OLD.updated_at THEN
			NEW.updated_at = CURRENT_TIMESTAMP;
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_balizas_updated_at ON balizas`,
	`CREATE TRIGGER trg_balizas_updated_at BEFORE UPDATE ON balizas
		FOR EACH ROW EXECUTE FUNCTION balizas_touch_updated_at()`,
}

// codes meaning the object is already there
var alreadyExistsCodes = map[pq.ErrorCode]bool{
	"42P07": true, // duplicate_table
	"42710": true, // duplicate_object
}

// InitSchema creates tables, indexes and the updated_at trigger
func InitSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && alreadyExistsCodes[pqErr.Code] {
				logger.Debug("schema object already exists", zap.Int("statement", i), zap.String("code", string(pqErr.Code)))
				continue
			}
			return classify(fmt.Errorf("schema statement %d: %w", i, err))
		}
	}

	var tables int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name IN ('balizas', 'baliza_history')`,
	).Scan(&tables)
	if err != nil {
		return classify(fmt.Errorf("verify schema: %w", err))
	}
	if tables != 2 {
		return fmt.Errorf("verify schema: found %d of 2 tables", tables)
	}
	logger.Info("schema ready", zap.Int("statements", len(schemaStatements)))
	return nil
}
