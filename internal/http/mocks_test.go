package httpapi

import (
	"context"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/feed"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/aislen404/mapabalizasv16/internal/service"
	"github.com/stretchr/testify/mock"
)

// MockBalizaService is a mock service.BalizaService
type MockBalizaService struct {
	mock.Mock
}

func (m *MockBalizaService) Current(ctx context.Context) feed.Snapshot {
	return m.Called(ctx).Get(0).(feed.Snapshot)
}

func (m *MockBalizaService) Refresh(ctx context.Context) feed.Snapshot {
	return m.Called(ctx).Get(0).(feed.Snapshot)
}

func (m *MockBalizaService) SaveNow(ctx context.Context) (service.SaveOutcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.SaveOutcome), args.Error(1)
}

func (m *MockBalizaService) CacheAge(ctx context.Context) (time.Duration, bool) {
	args := m.Called(ctx)
	return args.Get(0).(time.Duration), args.Bool(1)
}

// MockAnalyticsService is a mock service.AnalyticsService
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) GeneralStats(ctx context.Context, f repository.Filters) (repository.GeneralStats, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(repository.GeneralStats), args.Error(1)
}

func (m *MockAnalyticsService) StatsByLocation(ctx context.Context, f repository.Filters) (repository.LocationStats, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(repository.LocationStats), args.Error(1)
}

func (m *MockAnalyticsService) TimeSeries(ctx context.Context, g repository.Granularity, f repository.Filters) ([]repository.Bucket, error) {
	args := m.Called(ctx, g, f)
	return args.Get(0).([]repository.Bucket), args.Error(1)
}

func (m *MockAnalyticsService) LocationSeries(ctx context.Context, g repository.Granularity, k service.LocationKind, f repository.Filters) (service.LocationSeries, error) {
	args := m.Called(ctx, g, k, f)
	return args.Get(0).(service.LocationSeries), args.Error(1)
}

func (m *MockAnalyticsService) Accumulated(ctx context.Context, g repository.Granularity, f repository.Filters) ([]service.AccumulatedBucket, error) {
	args := m.Called(ctx, g, f)
	return args.Get(0).([]service.AccumulatedBucket), args.Error(1)
}

func (m *MockAnalyticsService) Patterns(ctx context.Context, k repository.PatternKind, f repository.Filters) (service.Pattern, error) {
	args := m.Called(ctx, k, f)
	return args.Get(0).(service.Pattern), args.Error(1)
}

func (m *MockAnalyticsService) Comparison(ctx context.Context, g repository.Granularity, k service.ComparisonKind, f repository.Filters) (service.Comparison, error) {
	args := m.Called(ctx, g, k, f)
	return args.Get(0).(service.Comparison), args.Error(1)
}

func (m *MockAnalyticsService) Trends(ctx context.Context, f repository.Filters) (service.Trends, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(service.Trends), args.Error(1)
}

func (m *MockAnalyticsService) RawData(ctx context.Context, f repository.Filters, limit, offset int) (repository.RawPage, error) {
	args := m.Called(ctx, f, limit, offset)
	return args.Get(0).(repository.RawPage), args.Error(1)
}

func (m *MockAnalyticsService) History(ctx context.Context, balizaID string, limit int) ([]domain.HistoryEntry, error) {
	args := m.Called(ctx, balizaID, limit)
	return args.Get(0).([]domain.HistoryEntry), args.Error(1)
}

func (m *MockAnalyticsService) Provincias(ctx context.Context, f repository.Filters) ([]string, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAnalyticsService) Comunidades(ctx context.Context, f repository.Filters) ([]string, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAnalyticsService) Export(ctx context.Context, f repository.Filters, limit int) ([]domain.StoredBaliza, error) {
	args := m.Called(ctx, f, limit)
	return args.Get(0).([]domain.StoredBaliza), args.Error(1)
}
