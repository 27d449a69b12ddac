package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var analyticsNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestAnalytics(b repository.BalizasRepository, h repository.HistoryRepository) *analyticsService {
	s := NewAnalyticsService(b, h, zap.NewNop()).(*analyticsService)
	s.now = func() time.Time { return analyticsNow }
	return s
}

var errRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func TestGeneralStats_DegradesWhenStorageUnreachable(t *testing.T) {
	repo := new(MockBalizasRepository)
	repo.On("GeneralStats", mock.Anything, repository.Filters{}).
		Return(repository.GeneralStats{}, errRefused)

	stats, err := newTestAnalytics(repo, nil).GeneralStats(context.Background(), repository.Filters{})

	require.NoError(t, err)
	assert.Equal(t, repository.GeneralStats{}, stats)
	repo.AssertExpectations(t)
}

func TestGeneralStats_QueryErrorPropagates(t *testing.T) {
	repo := new(MockBalizasRepository)
	repo.On("GeneralStats", mock.Anything, repository.Filters{}).
		Return(repository.GeneralStats{}, &pq.Error{Code: "42601", Message: "syntax error"})

	_, err := newTestAnalytics(repo, nil).GeneralStats(context.Background(), repository.Filters{})

	assert.Error(t, err)
}

func TestAnalytics_DisabledStoreIsEmpty(t *testing.T) {
	s := newTestAnalytics(nil, nil)
	ctx := context.Background()

	loc, err := s.StatsByLocation(ctx, repository.Filters{})
	require.NoError(t, err)
	assert.NotNil(t, loc.ByProvincia)
	assert.Empty(t, loc.ByProvincia)

	series, err := s.TimeSeries(ctx, repository.GranularityHour, repository.Filters{})
	require.NoError(t, err)
	assert.NotNil(t, series)
	assert.Empty(t, series)

	page, err := s.RawData(ctx, repository.Filters{}, 1000, 20)
	require.NoError(t, err)
	assert.Equal(t, 1000, page.Limit)
	assert.Equal(t, 20, page.Offset)
	assert.Empty(t, page.Data)

	p, err := s.Patterns(ctx, repository.PatternDayOfWeek, repository.Filters{})
	require.NoError(t, err)
	assert.Len(t, p.Data, 7)
	assert.Equal(t, "Domingo", p.Labels[0])

	list, err := s.Provincias(ctx, repository.Filters{})
	require.NoError(t, err)
	assert.Equal(t, []string{}, list)
}

func TestTimeSeries_DefaultWindow(t *testing.T) {
	hist := new(MockHistoryRepository)
	wantStart := analyticsNow.Add(-7 * 24 * time.Hour)
	hist.On("Buckets", mock.Anything, repository.GranularityHour, mock.MatchedBy(func(f repository.Filters) bool {
		return f.StartDate != nil && f.StartDate.Equal(wantStart) && f.EndDate == nil
	})).Return([]repository.Bucket{{Total: 3}}, nil)

	out, err := newTestAnalytics(nil, hist).TimeSeries(context.Background(), repository.GranularityHour, repository.Filters{})

	require.NoError(t, err)
	assert.Len(t, out, 1)
	hist.AssertExpectations(t)
}

func TestTimeSeries_KeepsExplicitStart(t *testing.T) {
	hist := new(MockHistoryRepository)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.MatchedBy(func(f repository.Filters) bool {
		return f.StartDate != nil && f.StartDate.Equal(start)
	})).Return([]repository.Bucket{}, nil)

	_, err := newTestAnalytics(nil, hist).TimeSeries(context.Background(), repository.GranularityDay, repository.Filters{StartDate: &start})

	require.NoError(t, err)
	hist.AssertExpectations(t)
}

func TestAccumulate_Monotonic(t *testing.T) {
	buckets := []repository.Bucket{
		{Total: 3, Activas: 2, Perdidas: 1, Nuevas: 3},
		{Total: 0},
		{Total: 5, Activas: 1, Perdidas: 4, Nuevas: 0},
	}

	out := accumulate(buckets)

	require.Len(t, out, 3)
	assert.Equal(t, int64(3), out[0].AcumuladoTotal)
	assert.Equal(t, int64(3), out[1].AcumuladoTotal)
	assert.Equal(t, int64(8), out[2].AcumuladoTotal)
	assert.Equal(t, int64(5), out[2].AcumuladoPerdidas)
	assert.Equal(t, int64(3), out[2].AcumuladoNuevas)
	assert.Equal(t, int64(5), out[2].Total)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i].AcumuladoTotal, out[i-1].AcumuladoTotal)
	}
}

func TestAccumulated_DefaultsToThirtyDays(t *testing.T) {
	hist := new(MockHistoryRepository)
	wantStart := analyticsNow.Add(-30 * 24 * time.Hour)
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.MatchedBy(func(f repository.Filters) bool {
		return f.StartDate != nil && f.StartDate.Equal(wantStart)
	})).Return([]repository.Bucket{{Total: 1}, {Total: 2}}, nil)

	out, err := newTestAnalytics(nil, hist).Accumulated(context.Background(), repository.GranularityDay, repository.Filters{})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[1].AcumuladoTotal)
}

func TestPatterns_DenseHourOfDay(t *testing.T) {
	hist := new(MockHistoryRepository)
	hist.On("PatternCounts", mock.Anything, repository.PatternHourOfDay, mock.Anything).
		Return([]repository.SlotCount{{Slot: 3, Total: 2}, {Slot: 17, Total: 5, Activas: 4}}, nil)

	p, err := newTestAnalytics(nil, hist).Patterns(context.Background(), repository.PatternHourOfDay, repository.Filters{})

	require.NoError(t, err)
	require.Len(t, p.Data, 24)
	require.Len(t, p.Labels, 24)
	assert.Equal(t, "17:00", p.Labels[17])
	nonZero := 0
	for i, v := range p.Data {
		if v != 0 {
			nonZero++
			assert.Contains(t, []int{3, 17}, i)
		}
	}
	assert.Equal(t, 2, nonZero)
	assert.Equal(t, int64(4), p.Activas[17])
}

func TestPatterns_DayOfWeekLabels(t *testing.T) {
	assert.Equal(t,
		[]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"},
		PatternLabels(repository.PatternDayOfWeek))
}

func TestComparisonWindows(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	f := repository.Filters{StartDate: &start, EndDate: &end}

	cur, prev := comparisonWindows(analyticsNow, f, ComparePrevious)
	assert.Equal(t, Window{Start: start, End: end}, cur)
	assert.Equal(t, start.Add(-time.Millisecond), prev.End)
	assert.Equal(t, end.Sub(start), prev.End.Sub(prev.Start))

	_, prev = comparisonWindows(analyticsNow, f, CompareLastYear)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), prev.Start)
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), prev.End)
}

func TestComparisonWindows_Defaults(t *testing.T) {
	cur, _ := comparisonWindows(analyticsNow, repository.Filters{}, ComparePrevious)

	assert.Equal(t, analyticsNow, cur.End)
	assert.Equal(t, analyticsNow.Add(-7*24*time.Hour), cur.Start)
}

func TestComparison_QueriesBothWindows(t *testing.T) {
	hist := new(MockHistoryRepository)
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.MatchedBy(func(f repository.Filters) bool {
		return f.EndDate != nil && f.EndDate.Equal(analyticsNow)
	})).Return([]repository.Bucket{{Total: 4}}, nil).Once()
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.MatchedBy(func(f repository.Filters) bool {
		return f.EndDate != nil && f.EndDate.Before(analyticsNow.Add(-7*24*time.Hour))
	})).Return([]repository.Bucket{{Total: 1}, {Total: 1}}, nil).Once()

	c, err := newTestAnalytics(nil, hist).Comparison(context.Background(), repository.GranularityDay, ComparePrevious, repository.Filters{})

	require.NoError(t, err)
	assert.Len(t, c.Current, 1)
	assert.Len(t, c.Comparison, 2)
	hist.AssertExpectations(t)
}

func TestParseComparisonKind(t *testing.T) {
	k, err := ParseComparisonKind("")
	require.NoError(t, err)
	assert.Equal(t, ComparePrevious, k)

	_, err = ParseComparisonKind("next-week")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTrendChange(t *testing.T) {
	tests := []struct {
		old, new, want int64
	}{
		{0, 0, 0},
		{0, 7, 100},
		{10, 15, 50},
		{10, 5, -50},
		{3, 4, 33},
		{3, 5, 67},
		{8, 7, -12},
		{8, 9, 13},
		{2, 1, -50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trendChange(tt.old, tt.new), "old=%d new=%d", tt.old, tt.new)
	}
}

func TestTrends_FirstVersusLastBucket(t *testing.T) {
	hist := new(MockHistoryRepository)
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.Anything).
		Return([]repository.Bucket{
			{Total: 10, Activas: 8, Perdidas: 2, Nuevas: 0},
			{Total: 100, Activas: 100},
			{Total: 15, Activas: 4, Perdidas: 11, Nuevas: 3},
		}, nil)

	tr, err := newTestAnalytics(nil, hist).Trends(context.Background(), repository.Filters{})

	require.NoError(t, err)
	assert.Equal(t, TrendValue{First: 10, Last: 15, Change: 50}, tr.Total)
	assert.Equal(t, TrendValue{First: 8, Last: 4, Change: -50}, tr.Activas)
	assert.Equal(t, TrendValue{First: 0, Last: 3, Change: 100}, tr.Nuevas)
}

func TestTrends_NoHistory(t *testing.T) {
	hist := new(MockHistoryRepository)
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.Anything).Return([]repository.Bucket{}, nil)

	tr, err := newTestAnalytics(nil, hist).Trends(context.Background(), repository.Filters{})

	require.NoError(t, err)
	assert.Equal(t, Trends{}, tr)
}

func TestLocationSeries_PicksGrouping(t *testing.T) {
	repo := new(MockBalizasRepository)
	hist := new(MockHistoryRepository)
	hist.On("Buckets", mock.Anything, repository.GranularityDay, mock.Anything).Return([]repository.Bucket{{Total: 1}}, nil)
	repo.On("StatsByLocation", mock.Anything, repository.Filters{}).Return(repository.LocationStats{
		ByProvincia: []repository.ProvinciaStats{{Provincia: "Lugo"}},
		ByComunidad: []repository.ComunidadStats{{Comunidad: "Galicia"}},
	}, nil)

	out, err := newTestAnalytics(repo, hist).LocationSeries(context.Background(), repository.GranularityDay, LocationComunidad, repository.Filters{})

	require.NoError(t, err)
	assert.Equal(t, []repository.ComunidadStats{{Comunidad: "Galicia"}}, out.Locations)
}

func TestHistory_RequiresID(t *testing.T) {
	_, err := newTestAnalytics(nil, nil).History(context.Background(), "", 10)

	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHistory_DegradesToEmpty(t *testing.T) {
	hist := new(MockHistoryRepository)
	hist.On("History", mock.Anything, "B1", 100).
		Return(nil, &pq.Error{Code: "42P01"})

	entries, err := newTestAnalytics(nil, hist).History(context.Background(), "B1", 100)

	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryEntry{}, entries)
}
