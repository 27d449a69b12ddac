package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"go.uber.org/zap"
)

// ErrInvalidArgument marks caller input the analytics layer rejects
var ErrInvalidArgument = errors.New("invalid argument")

// Default look-back windows when no start date is given
const (
	DefaultSeriesWindow      = 7 * 24 * time.Hour
	DefaultAccumulatedWindow = 30 * 24 * time.Hour
	DefaultPatternWindow     = 30 * 24 * time.Hour
)

// ComparisonKind how the comparison window is derived from the current one
type ComparisonKind string

const (
	ComparePrevious ComparisonKind = "previous"
	CompareLastYear ComparisonKind = "last-year"
)

// ParseComparisonKind validates s; empty yields previous
func ParseComparisonKind(s string) (ComparisonKind, error) {
	switch ComparisonKind(s) {
	case "":
		return ComparePrevious, nil
	case ComparePrevious, CompareLastYear:
		return ComparisonKind(s), nil
	}
	return "", fmt.Errorf("%w: comparison_type %q, want previous or last-year", ErrInvalidArgument, s)
}

// LocationKind grouping for the per-location series
type LocationKind string

const (
	LocationProvincia LocationKind = "provincia"
	LocationComunidad LocationKind = "comunidad"
)

// ParseLocationKind validates s; empty yields provincia
func ParseLocationKind(s string) (LocationKind, error) {
	switch LocationKind(s) {
	case "":
		return LocationProvincia, nil
	case LocationProvincia, LocationComunidad:
		return LocationKind(s), nil
	}
	return "", fmt.Errorf("%w: tipo %q, want provincia or comunidad", ErrInvalidArgument, s)
}

// AccumulatedBucket bucket counts plus running totals up to and including it
type AccumulatedBucket struct {
	repository.Bucket
	AcumuladoTotal    int64 `json:"acumulado_total"`
	AcumuladoActivas  int64 `json:"acumulado_activas"`
	AcumuladoPerdidas int64 `json:"acumulado_perdidas"`
	AcumuladoNuevas   int64 `json:"acumulado_nuevas"`
}

// Pattern dense per-slot histogram; Data holds totals
type Pattern struct {
	Tipo    repository.PatternKind `json:"tipo"`
	Labels  []string               `json:"labels"`
	Data    []int64                `json:"data"`
	Nuevas  []int64                `json:"nuevas"`
	Activas []int64                `json:"activas"`
}

// LocationSeries bucketed history plus current counts per location
type LocationSeries struct {
	Series    []repository.Bucket `json:"series"`
	Locations interface{}         `json:"locations"`
}

// Comparison two independently bucketed windows
type Comparison struct {
	Current    []repository.Bucket `json:"current"`
	Comparison []repository.Bucket `json:"comparison"`
	Window     Window              `json:"window"`
	Previous   Window              `json:"comparison_window"`
}

// Window closed time interval
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrendValue first and last daily value and the signed percentage change
type TrendValue struct {
	First  int64 `json:"first"`
	Last   int64 `json:"last"`
	Change int64 `json:"change"`
}

// Trends first-vs-last day comparison
type Trends struct {
	Total    TrendValue `json:"total"`
	Activas  TrendValue `json:"activas"`
	Perdidas TrendValue `json:"perdidas"`
	Nuevas   TrendValue `json:"nuevas"`
}

// AnalyticsService read-only views. Storage outages yield empty shapes, not errors.
type AnalyticsService interface {
	GeneralStats(ctx context.Context, f repository.Filters) (repository.GeneralStats, error)
	StatsByLocation(ctx context.Context, f repository.Filters) (repository.LocationStats, error)
	TimeSeries(ctx context.Context, g repository.Granularity, f repository.Filters) ([]repository.Bucket, error)
	LocationSeries(ctx context.Context, g repository.Granularity, k LocationKind, f repository.Filters) (LocationSeries, error)
	Accumulated(ctx context.Context, g repository.Granularity, f repository.Filters) ([]AccumulatedBucket, error)
	Patterns(ctx context.Context, k repository.PatternKind, f repository.Filters) (Pattern, error)
	Comparison(ctx context.Context, g repository.Granularity, k ComparisonKind, f repository.Filters) (Comparison, error)
	Trends(ctx context.Context, f repository.Filters) (Trends, error)
	RawData(ctx context.Context, f repository.Filters, limit, offset int) (repository.RawPage, error)
	History(ctx context.Context, balizaID string, limit int) ([]domain.HistoryEntry, error)
	Provincias(ctx context.Context, f repository.Filters) ([]string, error)
	Comunidades(ctx context.Context, f repository.Filters) ([]string, error)
	Export(ctx context.Context, f repository.Filters, limit int) ([]domain.StoredBaliza, error)
}

type analyticsService struct {
	balizas repository.BalizasRepository // nil when persistence is disabled
	history repository.HistoryRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyticsService creates the service; nil repositories behave as an unreachable store
func NewAnalyticsService(balizas repository.BalizasRepository, history repository.HistoryRepository, logger *zap.Logger) AnalyticsService {
	return &analyticsService{balizas: balizas, history: history, logger: logger, now: time.Now}
}

var errStoreDisabled = fmt.Errorf("%w: persistence disabled", repository.ErrStorageUnavailable)

// degrade swallows storage outages for view, logging them; other errors pass through
func (s *analyticsService) degrade(view string, err error) error {
	if err == nil {
		return nil
	}
	if repository.IsStorageUnavailable(err) {
		metrics.DegradedReads.WithLabelValues(view).Inc()
		s.logger.Warn("storage unavailable, returning empty result", zap.String("view", view), zap.Error(err))
		return nil
	}
	return err
}

// withDefaultStart fills a missing start date with now-window
func (s *analyticsService) withDefaultStart(f repository.Filters, window time.Duration) repository.Filters {
	if f.StartDate == nil {
		start := s.now().UTC().Add(-window)
		f.StartDate = &start
	}
	return f
}

func (s *analyticsService) GeneralStats(ctx context.Context, f repository.Filters) (repository.GeneralStats, error) {
	if s.balizas == nil {
		return repository.GeneralStats{}, s.degrade("general", errStoreDisabled)
	}
	stats, err := s.balizas.GeneralStats(ctx, f)
	if err != nil {
		return repository.GeneralStats{}, s.degrade("general", err)
	}
	return stats, nil
}

func emptyLocationStats() repository.LocationStats {
	return repository.LocationStats{ByProvincia: []repository.ProvinciaStats{}, ByComunidad: []repository.ComunidadStats{}}
}

func (s *analyticsService) StatsByLocation(ctx context.Context, f repository.Filters) (repository.LocationStats, error) {
	if s.balizas == nil {
		return emptyLocationStats(), s.degrade("by_location", errStoreDisabled)
	}
	stats, err := s.balizas.StatsByLocation(ctx, f)
	if err != nil {
		return emptyLocationStats(), s.degrade("by_location", err)
	}
	return stats, nil
}

func (s *analyticsService) buckets(ctx context.Context, view string, g repository.Granularity, f repository.Filters) ([]repository.Bucket, error) {
	if s.history == nil {
		return []repository.Bucket{}, s.degrade(view, errStoreDisabled)
	}
	out, err := s.history.Buckets(ctx, g, f)
	if err != nil {
		return []repository.Bucket{}, s.degrade(view, err)
	}
	return out, nil
}

func (s *analyticsService) TimeSeries(ctx context.Context, g repository.Granularity, f repository.Filters) ([]repository.Bucket, error) {
	return s.buckets(ctx, "timeseries", g, s.withDefaultStart(f, DefaultSeriesWindow))
}

func (s *analyticsService) LocationSeries(ctx context.Context, g repository.Granularity, k LocationKind, f repository.Filters) (LocationSeries, error) {
	out := LocationSeries{Series: []repository.Bucket{}, Locations: []interface{}{}}

	series, err := s.buckets(ctx, "location_series", g, s.withDefaultStart(f, DefaultSeriesWindow))
	if err != nil {
		return out, err
	}
	stats, err := s.StatsByLocation(ctx, f)
	if err != nil {
		return out, err
	}

	out.Series = series
	if k == LocationComunidad {
		out.Locations = stats.ByComunidad
	} else {
		out.Locations = stats.ByProvincia
	}
	return out, nil
}

func (s *analyticsService) Accumulated(ctx context.Context, g repository.Granularity, f repository.Filters) ([]AccumulatedBucket, error) {
	buckets, err := s.buckets(ctx, "accumulated", g, s.withDefaultStart(f, DefaultAccumulatedWindow))
	if err != nil {
		return []AccumulatedBucket{}, err
	}
	return accumulate(buckets), nil
}

// accumulate is a prefix sum over buckets in order
func accumulate(buckets []repository.Bucket) []AccumulatedBucket {
	out := make([]AccumulatedBucket, 0, len(buckets))
	var run AccumulatedBucket
	for _, b := range buckets {
		run.AcumuladoTotal += b.Total
		run.AcumuladoActivas += b.Activas
		run.AcumuladoPerdidas += b.Perdidas
		run.AcumuladoNuevas += b.Nuevas
		run.Bucket = b
		out = append(out, run)
	}
	return out
}

var weekdayLabels = []string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

// PatternLabels slot labels for k
func PatternLabels(k repository.PatternKind) []string {
	if k == repository.PatternDayOfWeek {
		return append([]string(nil), weekdayLabels...)
	}
	labels := make([]string, k.Slots())
	for i := range labels {
		labels[i] = strconv.Itoa(i) + ":00"
	}
	return labels
}

// densePattern places sparse slot counts into fixed-length arrays
func densePattern(k repository.PatternKind, slots []repository.SlotCount) Pattern {
	n := k.Slots()
	p := Pattern{
		Tipo:    k,
		Labels:  PatternLabels(k),
		Data:    make([]int64, n),
		Nuevas:  make([]int64, n),
		Activas: make([]int64, n),
	}
	for _, sc := range slots {
		if sc.Slot < 0 || sc.Slot >= n {
			continue
		}
		p.Data[sc.Slot] = sc.Total
		p.Nuevas[sc.Slot] = sc.Nuevas
		p.Activas[sc.Slot] = sc.Activas
	}
	return p
}

func (s *analyticsService) Patterns(ctx context.Context, k repository.PatternKind, f repository.Filters) (Pattern, error) {
	if s.history == nil {
		return densePattern(k, nil), s.degrade("patterns", errStoreDisabled)
	}
	slots, err := s.history.PatternCounts(ctx, k, s.withDefaultStart(f, DefaultPatternWindow))
	if err != nil {
		return densePattern(k, nil), s.degrade("patterns", err)
	}
	return densePattern(k, slots), nil
}

// comparisonWindows derives the current window from f and the window it is compared against
func comparisonWindows(now time.Time, f repository.Filters, k ComparisonKind) (cur, prev Window) {
	cur.End = now
	if f.EndDate != nil {
		cur.End = *f.EndDate
	}
	cur.Start = now.Add(-DefaultSeriesWindow)
	if f.StartDate != nil {
		cur.Start = *f.StartDate
	}

	switch k {
	case CompareLastYear:
		prev.Start = cur.Start.AddDate(-1, 0, 0)
		prev.End = cur.End.AddDate(-1, 0, 0)
	default:
		prev.End = cur.Start.Add(-time.Millisecond)
		prev.Start = prev.End.Add(-cur.End.Sub(cur.Start))
	}
	return cur, prev
}

func (s *analyticsService) Comparison(ctx context.Context, g repository.Granularity, k ComparisonKind, f repository.Filters) (Comparison, error) {
	cur, prev := comparisonWindows(s.now().UTC(), f, k)
	out := Comparison{Current: []repository.Bucket{}, Comparison: []repository.Bucket{}, Window: cur, Previous: prev}

	cf := f
	cf.StartDate, cf.EndDate = &cur.Start, &cur.End
	current, err := s.buckets(ctx, "comparison", g, cf)
	if err != nil {
		return out, err
	}

	pf := f
	pf.StartDate, pf.EndDate = &prev.Start, &prev.End
	previous, err := s.buckets(ctx, "comparison", g, pf)
	if err != nil {
		return out, err
	}

	out.Current, out.Comparison = current, previous
	return out, nil
}

// trendChange signed percentage change from old to new; halves round toward +Inf
func trendChange(oldVal, newVal int64) int64 {
	if oldVal == 0 {
		if newVal > 0 {
			return 100
		}
		return 0
	}
	return int64(math.Floor(float64(newVal-oldVal)/float64(oldVal)*100 + 0.5))
}

func trendValue(first, last int64) TrendValue {
	return TrendValue{First: first, Last: last, Change: trendChange(first, last)}
}

func (s *analyticsService) Trends(ctx context.Context, f repository.Filters) (Trends, error) {
	buckets, err := s.buckets(ctx, "trends", repository.GranularityDay, s.withDefaultStart(f, DefaultSeriesWindow))
	if err != nil || len(buckets) == 0 {
		return Trends{}, err
	}
	first, last := buckets[0], buckets[len(buckets)-1]
	return Trends{
		Total:    trendValue(first.Total, last.Total),
		Activas:  trendValue(first.Activas, last.Activas),
		Perdidas: trendValue(first.Perdidas, last.Perdidas),
		Nuevas:   trendValue(first.Nuevas, last.Nuevas),
	}, nil
}

func (s *analyticsService) RawData(ctx context.Context, f repository.Filters, limit, offset int) (repository.RawPage, error) {
	empty := repository.RawPage{Data: []domain.StoredBaliza{}, Limit: limit, Offset: offset}
	if s.balizas == nil {
		return empty, s.degrade("raw", errStoreDisabled)
	}
	page, err := s.balizas.RawData(ctx, f, limit, offset)
	if err != nil {
		return empty, s.degrade("raw", err)
	}
	return page, nil
}

func (s *analyticsService) History(ctx context.Context, balizaID string, limit int) ([]domain.HistoryEntry, error) {
	if balizaID == "" {
		return nil, fmt.Errorf("%w: baliza id is required", ErrInvalidArgument)
	}
	if s.history == nil {
		return []domain.HistoryEntry{}, s.degrade("history", errStoreDisabled)
	}
	entries, err := s.history.History(ctx, balizaID, limit)
	if err != nil {
		return []domain.HistoryEntry{}, s.degrade("history", err)
	}
	return entries, nil
}

func (s *analyticsService) Provincias(ctx context.Context, f repository.Filters) ([]string, error) {
	if s.balizas == nil {
		return []string{}, s.degrade("provincias", errStoreDisabled)
	}
	out, err := s.balizas.Provincias(ctx, f)
	if err != nil {
		return []string{}, s.degrade("provincias", err)
	}
	return out, nil
}

func (s *analyticsService) Comunidades(ctx context.Context, f repository.Filters) ([]string, error) {
	if s.balizas == nil {
		return []string{}, s.degrade("comunidades", errStoreDisabled)
	}
	out, err := s.balizas.Comunidades(ctx, f)
	if err != nil {
		return []string{}, s.degrade("comunidades", err)
	}
	return out, nil
}

func (s *analyticsService) Export(ctx context.Context, f repository.Filters, limit int) ([]domain.StoredBaliza, error) {
	page, err := s.RawData(ctx, f, limit, 0)
	if err != nil {
		return []domain.StoredBaliza{}, err
	}
	return page.Data, nil
}
