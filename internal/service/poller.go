package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller refreshes the snapshot on a fixed interval
type Poller struct {
	balizas  BalizaService
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller; Run returns immediately when interval <= 0
func NewPoller(balizas BalizaService, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{balizas: balizas, interval: interval, logger: logger}
}

// Run refreshes once, then on every tick until ctx is done
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting feed poller", zap.Duration("interval", p.interval))
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Feed poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	started := time.Now()
	snap := p.balizas.Refresh(ctx)
	p.logger.Info("Feed poll completed",
		zap.Int("balizas", len(snap.Balizas)),
		zap.Bool("fallback", snap.Fallback),
		zap.Duration("took", time.Since(started)),
	)
}
