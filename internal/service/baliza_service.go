package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/feed"
	"github.com/aislen404/mapabalizasv16/internal/notify"
	"github.com/aislen404/mapabalizasv16/internal/repository"
	"go.uber.org/zap"
)

// SnapshotProvider yields the normalized feed; it never fails
type SnapshotProvider interface {
	Obtain(ctx context.Context) feed.Snapshot
}

// BalizaService serves the live snapshot and persists it
type BalizaService interface {
	// Current returns the cached snapshot, fetching and persisting on a miss
	Current(ctx context.Context) feed.Snapshot
	// Refresh bypasses the cache, re-fetches, persists and re-caches
	Refresh(ctx context.Context) feed.Snapshot
	// SaveNow fetches and persists without touching the cache
	SaveNow(ctx context.Context) (SaveOutcome, error)
	// CacheAge is the age of the cached snapshot, false when empty
	CacheAge(ctx context.Context) (time.Duration, bool)
}

// SaveOutcome batch counts plus whether the example set stood in for the feed
type SaveOutcome struct {
	repository.SaveResult
	Fallback bool `json:"fallback"`
}

type balizaService struct {
	provider SnapshotProvider
	cache    *SnapshotCache
	repo     repository.BalizasRepository // nil when persistence is disabled
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewBalizaService creates the service; repo may be nil
func NewBalizaService(
	provider SnapshotProvider,
	cache *SnapshotCache,
	repo repository.BalizasRepository,
	notifier notify.Notifier,
	logger *zap.Logger,
) BalizaService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &balizaService{
		provider: provider,
		cache:    cache,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *balizaService) Current(ctx context.Context) feed.Snapshot {
	if snap, ok := s.cache.Get(ctx); ok {
		s.logger.Debug("serving snapshot from cache", zap.Int("balizas", len(snap.Balizas)))
		return snap
	}
	return s.fetchAndStore(ctx)
}

func (s *balizaService) Refresh(ctx context.Context) feed.Snapshot {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate snapshot cache", zap.Error(err))
	}
	return s.fetchAndStore(ctx)
}

func (s *balizaService) fetchAndStore(ctx context.Context) feed.Snapshot {
	snap := s.provider.Obtain(ctx)

	if s.repo != nil {
		if _, err := s.persist(ctx, snap); err != nil {
			s.logger.Warn("snapshot not persisted", zap.Error(err))
		}
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.logger.Warn("failed to cache snapshot", zap.Error(err))
	}
	return snap
}

func (s *balizaService) SaveNow(ctx context.Context) (SaveOutcome, error) {
	snap := s.provider.Obtain(ctx)
	res, err := s.persist(ctx, snap)
	if err != nil {
		return SaveOutcome{}, err
	}
	return SaveOutcome{SaveResult: res, Fallback: snap.Fallback}, nil
}

// persist saves a live snapshot and publishes its changes. Example data
// standing in for the feed is never written.
func (s *balizaService) persist(ctx context.Context, snap feed.Snapshot) (repository.SaveResult, error) {
	if s.repo == nil {
		return repository.SaveResult{}, fmt.Errorf("%w: persistence disabled", repository.ErrStorageUnavailable)
	}
	if snap.Fallback {
		s.logger.Info("skipping persistence of example data", zap.Int("balizas", len(snap.Balizas)))
		return repository.SaveResult{}, nil
	}

	res := s.repo.SaveMany(ctx, snap.Balizas)
	if len(res.Changes) > 0 {
		if err := s.notifier.Notify(ctx, res.Changes); err != nil {
			s.logger.Warn("some change notifications failed", zap.Int("changes", len(res.Changes)), zap.Error(err))
		}
	}
	return res, nil
}

func (s *balizaService) CacheAge(ctx context.Context) (time.Duration, bool) {
	return s.cache.Age(ctx)
}
