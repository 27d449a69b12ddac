package feed

import (
	"context"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"go.uber.org/zap"
)

// Snapshot is one normalized view of the feed
type Snapshot struct {
	Balizas   []domain.Baliza `json:"balizas"`
	Source    string          `json:"-"`
	Fallback  bool            `json:"-"`
	FetchedAt time.Time       `json:"-"`
}

// Provider fetches, normalizes and, when upstream is unusable, substitutes example data
type Provider struct {
	source Source
	logger *zap.Logger
	now    func() time.Time
}

// NewProvider creates a provider over source
func NewProvider(source Source, logger *zap.Logger) *Provider {
	return &Provider{source: source, logger: logger, now: time.Now}
}

// Obtain never fails: fetch and decode errors, or an empty result, yield the example set
func (p *Provider) Obtain(ctx context.Context) Snapshot {
	now := p.now().UTC()
	snap := Snapshot{Source: p.source.Name(), FetchedAt: now}

	raw, err := p.source.Fetch(ctx)
	if err != nil {
		p.logger.Warn("feed fetch failed, serving example data",
			zap.String("source", p.source.Name()),
			zap.Error(err),
		)
		return p.fallback(snap, "fetch_error")
	}

	balizas, err := Normalize(raw, p.source.Kind(), now)
	if err != nil {
		p.logger.Warn("feed payload not understood, serving example data",
			zap.String("source", p.source.Name()),
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		return p.fallback(snap, "decode_error")
	}
	if len(balizas) == 0 {
		p.logger.Warn("feed returned no beacons, serving example data", zap.String("source", p.source.Name()))
		return p.fallback(snap, "empty")
	}

	for i := range balizas {
		balizas[i].ApplyDefaults()
	}
	snap.Balizas = balizas
	metrics.FeedRecords.Set(float64(len(balizas)))
	p.logger.Info("feed normalized",
		zap.String("source", p.source.Name()),
		zap.Int("balizas", len(balizas)),
	)
	return snap
}

func (p *Provider) fallback(snap Snapshot, reason string) Snapshot {
	metrics.FeedFallbacks.WithLabelValues(reason).Inc()
	snap.Balizas = ExampleBalizas(snap.FetchedAt)
	snap.Fallback = true
	metrics.FeedRecords.Set(float64(len(snap.Balizas)))
	return snap
}
