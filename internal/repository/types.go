package repository

import (
	"fmt"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
)

// Granularity time-bucket size for history aggregations
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

var bucketExpr = map[Granularity]string{
	GranularityHour:  "DATE_TRUNC('hour', changed_at)",
	GranularityDay:   "DATE_TRUNC('day', changed_at)",
	GranularityWeek:  "DATE_TRUNC('week', changed_at)",
	GranularityMonth: "DATE_TRUNC('month', changed_at)",
}

// ParseGranularity validates s; empty yields def
func ParseGranularity(s string, def Granularity) (Granularity, error) {
	if s == "" {
		return def, nil
	}
	g := Granularity(s)
	if _, ok := bucketExpr[g]; !ok {
		return "", fmt.Errorf("invalid agrupacion %q: want hour, day, week or month", s)
	}
	return g, nil
}

// PatternKind cyclic grouping for pattern histograms
type PatternKind string

const (
	PatternDayOfWeek PatternKind = "day-of-week"
	PatternHourOfDay PatternKind = "hour-of-day"
)

var patternExpr = map[PatternKind]string{
	PatternDayOfWeek: "EXTRACT(DOW FROM changed_at)",
	PatternHourOfDay: "EXTRACT(HOUR FROM changed_at)",
}

// Slots is the dense array length for the kind
func (k PatternKind) Slots() int {
	if k == PatternHourOfDay {
		return 24
	}
	return 7
}

// ParsePatternKind validates s; empty yields day-of-week
func ParsePatternKind(s string) (PatternKind, error) {
	if s == "" {
		return PatternDayOfWeek, nil
	}
	k := PatternKind(s)
	if _, ok := patternExpr[k]; !ok {
		return "", fmt.Errorf("invalid pattern tipo %q: want day-of-week or hour-of-day", s)
	}
	return k, nil
}

// UpsertResult outcome of reconciling one report
type UpsertResult struct {
	Existed    bool
	Changed    bool
	ChangeType domain.ChangeType // empty for a lastSeen-only touch
	At         time.Time         // transaction timestamp, written as changed_at
}

// Change one committed mutation that produced a history row
type Change struct {
	Baliza     domain.Baliza
	ChangeType domain.ChangeType
	ChangedAt  time.Time
}

// SaveResult batch outcome counts
type SaveResult struct {
	Saved   int      `json:"saved"`
	Updated int      `json:"updated"`
	Errors  int      `json:"errors"`
	Total   int      `json:"total"`
	Changes []Change `json:"-"`
}

// StatusCounts counts by status
type StatusCounts struct {
	Total    int64 `json:"total"`
	Activas  int64 `json:"activas"`
	Perdidas int64 `json:"perdidas"`
}

// GeneralStats headline counts over the current-state table
type GeneralStats struct {
	StatusCounts
	Provincias  int64 `json:"provincias"`
	Comunidades int64 `json:"comunidades"`
	Carreteras  int64 `json:"carreteras"`
}

// ProvinciaStats counts for one provincia
type ProvinciaStats struct {
	Provincia string `json:"provincia"`
	StatusCounts
}

// ComunidadStats counts for one comunidad
type ComunidadStats struct {
	Comunidad string `json:"comunidad"`
	StatusCounts
}

// LocationStats counts grouped by provincia and by comunidad, largest first
type LocationStats struct {
	ByProvincia []ProvinciaStats `json:"byProvincia"`
	ByComunidad []ComunidadStats `json:"byComunidad"`
}

// Bucket history counts in one time bucket
type Bucket struct {
	Periodo  time.Time `json:"periodo"`
	Total    int64     `json:"total"`
	Nuevas   int64     `json:"nuevas"`
	Activas  int64     `json:"activas"`
	Perdidas int64     `json:"perdidas"`
}

// SlotCount history count in one cyclic slot (weekday or hour)
type SlotCount struct {
	Slot    int
	Total   int64
	Nuevas  int64
	Activas int64
}

// RawPage one page of current-state rows
type RawPage struct {
	Data   []domain.StoredBaliza `json:"data"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}
