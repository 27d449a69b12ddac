package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// TaggingPolicy decides the history tag of a changed row
type TaggingPolicy int

const (
	// TagLiteral tags every change status_change
	TagLiteral TaggingPolicy = iota
	// TagByStatus tags status flips status_change and other edits info_update
	TagByStatus
)

// BalizasRepository current-state table: reconciliation and reads
type BalizasRepository interface {
	Upsert(ctx context.Context, b domain.Baliza) (UpsertResult, error)
	SaveMany(ctx context.Context, balizas []domain.Baliza) SaveResult

	GeneralStats(ctx context.Context, f Filters) (GeneralStats, error)
	StatsByLocation(ctx context.Context, f Filters) (LocationStats, error)
	RawData(ctx context.Context, f Filters, limit, offset int) (RawPage, error)
	Provincias(ctx context.Context, f Filters) ([]string, error)
	Comunidades(ctx context.Context, f Filters) ([]string, error)
}

// PostgresBalizasRepository Postgres implementation
type PostgresBalizasRepository struct {
	db       *sql.DB
	logger   *zap.Logger
	validate *validator.Validate
	tagging  TaggingPolicy
	now      func() time.Time
}

var _ BalizasRepository = (*PostgresBalizasRepository)(nil)

// NewPostgresBalizasRepository creates the repository
func NewPostgresBalizasRepository(db *sql.DB, tagging TaggingPolicy, logger *zap.Logger) *PostgresBalizasRepository {
	return &PostgresBalizasRepository{
		db:       db,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tagging:  tagging,
		now:      time.Now,
	}
}

// storedFields columns compared to detect a change
type storedFields struct {
	status    string
	lat, lon  float64
	carretera sql.NullString
	pk        sql.NullString
}

// Upsert reconciles one report in its own transaction. A report identical on
// status, lat, lon, carretera and pk only moves last_seen and writes no history.
func (r *PostgresBalizasRepository) Upsert(ctx context.Context, b domain.Baliza) (UpsertResult, error) {
	res, err := r.upsertOnce(ctx, b)
	if err != nil && isUniqueViolation(err) {
		// a concurrent insert of the same id won; reconcile against its row
		res, err = r.upsertOnce(ctx, b)
	}
	if err != nil {
		metrics.UpsertOutcomes.WithLabelValues("error").Inc()
		return UpsertResult{}, classify(err)
	}
	outcome := string(res.ChangeType)
	if outcome == "" {
		outcome = "touch"
	}
	metrics.UpsertOutcomes.WithLabelValues(outcome).Inc()
	return res, nil
}

func (r *PostgresBalizasRepository) upsertOnce(ctx context.Context, b domain.Baliza) (UpsertResult, error) {
	now := r.now().UTC()
	lastSeen := b.LastSeen
	if lastSeen.IsZero() {
		lastSeen = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var cur storedFields
	err = tx.QueryRowContext(ctx,
		`SELECT status, lat, lon, carretera, pk FROM balizas WHERE id = $1 FOR UPDATE`,
		b.ID,
	).Scan(&cur.status, &cur.lat, &cur.lon, &cur.carretera, &cur.pk)

	var res UpsertResult
	switch {
	case errors.Is(err, sql.ErrNoRows):
		firstSeen := b.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balizas (
				id, lat, lon, status, carretera, pk, sentido, orientacion,
				comunidad, provincia, municipio, first_seen, last_seen, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			b.ID, b.Lat, b.Lon, string(b.Status),
			nullString(b.Carretera), nullString(b.PK), nullString(b.Sentido), nullString(b.Orientacion),
			nullString(b.Comunidad), nullString(b.Provincia), nullString(b.Municipio),
			firstSeen, lastSeen, now,
		); err != nil {
			return UpsertResult{}, fmt.Errorf("insert baliza %s: %w", b.ID, err)
		}
		res = UpsertResult{Existed: false, Changed: true, ChangeType: domain.ChangeNew, At: now}

	case err != nil:
		return UpsertResult{}, fmt.Errorf("select baliza %s: %w", b.ID, err)

	case !hasChanges(cur, b):
		if _, err := tx.ExecContext(ctx,
			`UPDATE balizas SET last_seen = $1, updated_at = $2 WHERE id = $3`,
			lastSeen, now, b.ID,
		); err != nil {
			return UpsertResult{}, fmt.Errorf("touch baliza %s: %w", b.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return UpsertResult{}, fmt.Errorf("commit: %w", err)
		}
		return UpsertResult{Existed: true, Changed: false, At: now}, nil

	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE balizas SET
				lat = $1, lon = $2, status = $3,
				carretera = $4, pk = $5, sentido = $6, orientacion = $7,
				comunidad = $8, provincia = $9, municipio = $10,
				first_seen = COALESCE(first_seen, $11),
				last_seen = $12,
				updated_at = $13
			WHERE id = $14`,
			b.Lat, b.Lon, string(b.Status),
			nullString(b.Carretera), nullString(b.PK), nullString(b.Sentido), nullString(b.Orientacion),
			nullString(b.Comunidad), nullString(b.Provincia), nullString(b.Municipio),
			nullTime(b.FirstSeen), lastSeen, now, b.ID,
		); err != nil {
			return UpsertResult{}, fmt.Errorf("update baliza %s: %w", b.ID, err)
		}
		res = UpsertResult{Existed: true, Changed: true, ChangeType: r.changeType(cur, b), At: now}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO baliza_history (
			baliza_id, status, lat, lon, carretera, pk, sentido, orientacion,
			comunidad, provincia, municipio, changed_at, change_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.ID, string(b.Status), b.Lat, b.Lon,
		nullString(b.Carretera), nullString(b.PK), nullString(b.Sentido), nullString(b.Orientacion),
		nullString(b.Comunidad), nullString(b.Provincia), nullString(b.Municipio),
		now, string(res.ChangeType),
	); err != nil {
		return UpsertResult{}, fmt.Errorf("insert history %s: %w", b.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// hasChanges compares coordinates at the column scale (8 decimals)
func hasChanges(cur storedFields, b domain.Baliza) bool {
	return cur.status != string(b.Status) ||
		roundCoord(cur.lat) != roundCoord(b.Lat) ||
		roundCoord(cur.lon) != roundCoord(b.Lon) ||
		cur.carretera.String != b.Carretera ||
		cur.pk.String != b.PK
}

func (r *PostgresBalizasRepository) changeType(cur storedFields, b domain.Baliza) domain.ChangeType {
	if r.tagging == TagByStatus && cur.status == string(b.Status) {
		return domain.ChangeInfoUpdate
	}
	return domain.ChangeStatusChange
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// SaveMany upserts each report in its own transaction. A failing report is
// counted in Errors and does not stop the batch.
func (r *PostgresBalizasRepository) SaveMany(ctx context.Context, balizas []domain.Baliza) SaveResult {
	res := SaveResult{Total: len(balizas)}
	for _, b := range balizas {
		if err := r.validate.Struct(b); err != nil {
			res.Errors++
			metrics.UpsertOutcomes.WithLabelValues("error").Inc()
			r.logger.Warn("rejected invalid baliza", zap.String("baliza_id", b.ID), zap.Error(err))
			continue
		}

		out, err := r.Upsert(ctx, b)
		if err != nil {
			res.Errors++
			r.logger.Warn("failed to save baliza", zap.String("baliza_id", b.ID), zap.Error(err))
			continue
		}

		switch {
		case !out.Existed:
			res.Saved++
		case out.Changed:
			res.Updated++
		}
		if out.Changed {
			res.Changes = append(res.Changes, Change{Baliza: b, ChangeType: out.ChangeType, ChangedAt: out.At})
		}
	}

	r.logger.Info("balizas saved",
		zap.Int("saved", res.Saved),
		zap.Int("updated", res.Updated),
		zap.Int("errors", res.Errors),
		zap.Int("total", res.Total),
	)
	return res
}

// GeneralStats counts rows by status and distinct location values
func (r *PostgresBalizasRepository) GeneralStats(ctx context.Context, f Filters) (GeneralStats, error) {
	p := filterPredicate(f, balizasTimeColumn)
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'lost'),
			COUNT(DISTINCT provincia),
			COUNT(DISTINCT comunidad),
			COUNT(DISTINCT carretera)
		FROM balizas ` + p.where()

	var total, activas, perdidas, provincias, comunidades, carreteras sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, p.args...).Scan(&total, &activas, &perdidas, &provincias, &comunidades, &carreteras)
	if errors.Is(err, sql.ErrNoRows) {
		return GeneralStats{}, nil
	}
	if err != nil {
		return GeneralStats{}, classify(fmt.Errorf("general stats: %w", err))
	}
	return GeneralStats{
		StatusCounts: StatusCounts{Total: total.Int64, Activas: activas.Int64, Perdidas: perdidas.Int64},
		Provincias:   provincias.Int64,
		Comunidades:  comunidades.Int64,
		Carreteras:   carreteras.Int64,
	}, nil
}

// StatsByLocation groups by provincia and by comunidad independently
func (r *PostgresBalizasRepository) StatsByLocation(ctx context.Context, f Filters) (LocationStats, error) {
	out := LocationStats{ByProvincia: []ProvinciaStats{}, ByComunidad: []ComunidadStats{}}

	provincias, err := r.groupedCounts(ctx, "provincia", f)
	if err != nil {
		return out, err
	}
	for _, g := range provincias {
		out.ByProvincia = append(out.ByProvincia, ProvinciaStats{Provincia: g.key, StatusCounts: g.counts})
	}

	comunidades, err := r.groupedCounts(ctx, "comunidad", f)
	if err != nil {
		return out, err
	}
	for _, g := range comunidades {
		out.ByComunidad = append(out.ByComunidad, ComunidadStats{Comunidad: g.key, StatusCounts: g.counts})
	}
	return out, nil
}

type groupCount struct {
	key    string
	counts StatusCounts
}

// groupedCounts column is one of the fixed location columns, never user input
func (r *PostgresBalizasRepository) groupedCounts(ctx context.Context, column string, f Filters) ([]groupCount, error) {
	p := filterPredicate(f, balizasTimeColumn)
	query := fmt.Sprintf(`
		SELECT
			%[1]s,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'lost')
		FROM balizas %[2]s
		GROUP BY %[1]s
		ORDER BY total DESC`, column, p.where())

	rows, err := r.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return nil, classify(fmt.Errorf("stats by %s: %w", column, err))
	}
	defer rows.Close()

	var out []groupCount
	for rows.Next() {
		var key sql.NullString
		var total, activas, perdidas sql.NullInt64
		if err := rows.Scan(&key, &total, &activas, &perdidas); err != nil {
			return nil, fmt.Errorf("scan stats by %s: %w", column, err)
		}
		out = append(out, groupCount{
			key:    key.String,
			counts: StatusCounts{Total: total.Int64, Activas: activas.Int64, Perdidas: perdidas.Int64},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

const storedColumns = `id, lat, lon, status, carretera, pk, sentido, orientacion,
	comunidad, provincia, municipio, first_seen, last_seen, updated_at`

// RawData returns one page ordered by last_seen, newest first, plus the filtered total
func (r *PostgresBalizasRepository) RawData(ctx context.Context, f Filters, limit, offset int) (RawPage, error) {
	page := RawPage{Data: []domain.StoredBaliza{}, Limit: limit, Offset: offset}

	p := filterPredicate(f, balizasTimeColumn)
	where := p.where()
	countArgs := append([]interface{}(nil), p.args...)
	query := `SELECT ` + storedColumns + ` FROM balizas ` + where +
		` ORDER BY last_seen DESC LIMIT ` + p.bind(limit) + ` OFFSET ` + p.bind(offset)

	rows, err := r.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return page, classify(fmt.Errorf("raw data: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanStored(rows)
		if err != nil {
			return page, err
		}
		page.Data = append(page.Data, b)
	}
	if err := rows.Err(); err != nil {
		return page, classify(err)
	}

	var total sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM balizas `+where, countArgs...).Scan(&total); err != nil {
		return page, classify(fmt.Errorf("raw data count: %w", err))
	}
	page.Total = total.Int64
	return page, nil
}

func scanStored(rows *sql.Rows) (domain.StoredBaliza, error) {
	var (
		b                                   domain.StoredBaliza
		status                              string
		carretera, pk, sentido, orientacion sql.NullString
		comunidad, provincia, municipio     sql.NullString
		firstSeen, lastSeen, updatedAt      sql.NullTime
	)
	if err := rows.Scan(&b.ID, &b.Lat, &b.Lon, &status, &carretera, &pk, &sentido, &orientacion,
		&comunidad, &provincia, &municipio, &firstSeen, &lastSeen, &updatedAt); err != nil {
		return b, fmt.Errorf("scan baliza: %w", err)
	}
	b.Status = domain.Status(status)
	b.Carretera, b.PK, b.Sentido, b.Orientacion = carretera.String, pk.String, sentido.String, orientacion.String
	b.Comunidad, b.Provincia, b.Municipio = comunidad.String, provincia.String, municipio.String
	b.FirstSeen, b.LastSeen, b.UpdatedAt = timePtr(firstSeen), timePtr(lastSeen), timePtr(updatedAt)
	return b, nil
}

// Provincias distinct known provincias, alphabetical
func (r *PostgresBalizasRepository) Provincias(ctx context.Context, f Filters) ([]string, error) {
	return r.distinct(ctx, "provincia", f)
}

// Comunidades distinct known comunidades, alphabetical
func (r *PostgresBalizasRepository) Comunidades(ctx context.Context, f Filters) ([]string, error) {
	return r.distinct(ctx, "comunidad", f)
}

func (r *PostgresBalizasRepository) distinct(ctx context.Context, column string, f Filters) ([]string, error) {
	p := &predicate{}
	p.addFixed(column + " IS NOT NULL")
	p.add(column+" <> %s", domain.NotAvailable)
	p.apply(f, balizasTimeColumn)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %[1]s FROM balizas %[2]s ORDER BY %[1]s ASC`, column, p.where()),
		p.args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list %s: %w", column, err))
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		out = append(out, v)
	}
	return out, classify(rows.Err())
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
