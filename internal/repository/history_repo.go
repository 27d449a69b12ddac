package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"go.uber.org/zap"
)

// DefaultHistoryLimit rows returned by History when limit <= 0
const DefaultHistoryLimit = 100

// HistoryRepository append-only audit log reads
type HistoryRepository interface {
	History(ctx context.Context, balizaID string, limit int) ([]domain.HistoryEntry, error)
	Buckets(ctx context.Context, g Granularity, f Filters) ([]Bucket, error)
	PatternCounts(ctx context.Context, k PatternKind, f Filters) ([]SlotCount, error)
}

// PostgresHistoryRepository Postgres implementation
type PostgresHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ HistoryRepository = (*PostgresHistoryRepository)(nil)

// NewPostgresHistoryRepository creates the repository
func NewPostgresHistoryRepository(db *sql.DB, logger *zap.Logger) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db, logger: logger}
}

// History entries of one baliza, newest first
func (r *PostgresHistoryRepository) History(ctx context.Context, balizaID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, baliza_id, status, lat, lon, carretera, pk, sentido, orientacion,
			comunidad, provincia, municipio, changed_at, change_type
		FROM baliza_history
		WHERE baliza_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2`, balizaID, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("history %s: %w", balizaID, err))
	}
	defer rows.Close()

	out := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			e                                   domain.HistoryEntry
			status, changeType                  sql.NullString
			lat, lon                            sql.NullFloat64
			carretera, pk, sentido, orientacion sql.NullString
			comunidad, provincia, municipio     sql.NullString
			changedAt                           sql.NullTime
		)
		if err := rows.Scan(&e.Seq, &e.BalizaID, &status, &lat, &lon, &carretera, &pk, &sentido, &orientacion,
			&comunidad, &provincia, &municipio, &changedAt, &changeType); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Status = domain.Status(status.String)
		e.Lat, e.Lon = lat.Float64, lon.Float64
		e.Carretera, e.PK, e.Sentido, e.Orientacion = carretera.String, pk.String, sentido.String, orientacion.String
		e.Comunidad, e.Provincia, e.Municipio = comunidad.String, provincia.String, municipio.String
		e.ChangedAt = changedAt.Time.UTC()
		e.ChangeType = domain.ChangeType(changeType.String)
		out = append(out, e)
	}
	return out, classify(rows.Err())
}

// Buckets counts history rows per time bucket, oldest first; empty buckets are omitted
func (r *PostgresHistoryRepository) Buckets(ctx context.Context, g Granularity, f Filters) ([]Bucket, error) {
	expr, ok := bucketExpr[g]
	if !ok {
		return nil, fmt.Errorf("unknown granularity %q", g)
	}
	p := filterPredicate(f, historyTimeColumn)
	query := fmt.Sprintf(`
		SELECT
			%[1]s AS periodo,
			COUNT(*),
			COUNT(*) FILTER (WHERE change_type = 'new'),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'lost')
		FROM baliza_history %[2]s
		GROUP BY periodo
		ORDER BY periodo ASC`, expr, p.where())

	rows, err := r.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return nil, classify(fmt.Errorf("buckets by %s: %w", g, err))
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		var periodo sql.NullTime
		var total, nuevas, activas, perdidas sql.NullInt64
		if err := rows.Scan(&periodo, &total, &nuevas, &activas, &perdidas); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.Periodo = periodo.Time.UTC()
		b.Total, b.Nuevas, b.Activas, b.Perdidas = total.Int64, nuevas.Int64, activas.Int64, perdidas.Int64
		out = append(out, b)
	}
	return out, classify(rows.Err())
}

// PatternCounts counts history rows per weekday (0 = Sunday) or hour; only
// populated slots are returned
func (r *PostgresHistoryRepository) PatternCounts(ctx context.Context, k PatternKind, f Filters) ([]SlotCount, error) {
	expr, ok := patternExpr[k]
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q", k)
	}
	p := filterPredicate(f, historyTimeColumn)
	query := fmt.Sprintf(`
		SELECT
			%[1]s::int AS slot,
			COUNT(*),
			COUNT(*) FILTER (WHERE change_type = 'new'),
			COUNT(*) FILTER (WHERE status = 'active')
		FROM baliza_history %[2]s
		GROUP BY slot
		ORDER BY slot ASC`, expr, p.where())

	rows, err := r.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return nil, classify(fmt.Errorf("pattern %s: %w", k, err))
	}
	defer rows.Close()

	out := []SlotCount{}
	for rows.Next() {
		var s SlotCount
		var total, nuevas, activas sql.NullInt64
		if err := rows.Scan(&s.Slot, &total, &nuevas, &activas); err != nil {
			return nil, fmt.Errorf("scan pattern slot: %w", err)
		}
		if s.Slot < 0 || s.Slot >= k.Slots() {
			r.logger.Warn("pattern slot out of range", zap.String("pattern", string(k)), zap.Int("slot", s.Slot))
			continue
		}
		s.Total, s.Nuevas, s.Activas = total.Int64, nuevas.Int64, activas.Int64
		out = append(out, s)
	}
	return out, classify(rows.Err())
}
