package service

import (
	"context"
	"sync"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/feed"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"github.com/stretchr/testify/mock"
)

// MockBalizasRepository is a mock BalizasRepository
type MockBalizasRepository struct {
	mock.Mock
}

func (m *MockBalizasRepository) Upsert(ctx context.Context, b domain.Baliza) (repository.UpsertResult, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(repository.UpsertResult), args.Error(1)
}

func (m *MockBalizasRepository) SaveMany(ctx context.Context, balizas []domain.Baliza) repository.SaveResult {
	args := m.Called(ctx, balizas)
	return args.Get(0).(repository.SaveResult)
}

func (m *MockBalizasRepository) GeneralStats(ctx context.Context, f repository.Filters) (repository.GeneralStats, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(repository.GeneralStats), args.Error(1)
}

func (m *MockBalizasRepository) StatsByLocation(ctx context.Context, f repository.Filters) (repository.LocationStats, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(repository.LocationStats), args.Error(1)
}

func (m *MockBalizasRepository) RawData(ctx context.Context, f repository.Filters, limit, offset int) (repository.RawPage, error) {
	args := m.Called(ctx, f, limit, offset)
	return args.Get(0).(repository.RawPage), args.Error(1)
}

func (m *MockBalizasRepository) Provincias(ctx context.Context, f repository.Filters) ([]string, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBalizasRepository) Comunidades(ctx context.Context, f repository.Filters) ([]string, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockHistoryRepository is a mock HistoryRepository
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) History(ctx context.Context, balizaID string, limit int) ([]domain.HistoryEntry, error) {
	args := m.Called(ctx, balizaID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.HistoryEntry), args.Error(1)
}

func (m *MockHistoryRepository) Buckets(ctx context.Context, g repository.Granularity, f repository.Filters) ([]repository.Bucket, error) {
	args := m.Called(ctx, g, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Bucket), args.Error(1)
}

func (m *MockHistoryRepository) PatternCounts(ctx context.Context, k repository.PatternKind, f repository.Filters) ([]repository.SlotCount, error) {
	args := m.Called(ctx, k, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.SlotCount), args.Error(1)
}

// MockNotifier is a mock notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, changes []repository.Change) error {
	args := m.Called(ctx, changes)
	return args.Error(0)
}

// stubProvider returns a fixed snapshot and counts calls
type stubProvider struct {
	mu    sync.Mutex
	snap  feed.Snapshot
	calls int
}

func (p *stubProvider) Obtain(context.Context) feed.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.snap
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
