package service

import (
	"context"
	"time"

	"github.com/layer-3/keeper/ports"
	"go.uber.org/zap"
)

// Sweeper periodically deletes expired ledger records
type Sweeper struct {
	ledger   ports.Ledger
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(ledger ports.Ledger, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		logger:   logger.Named("sweeper"),
	}
}

// Run sweeps until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.ledger.Sweep(ctx)
	if err != nil {
		s.logger.Error("ledger sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("ledger swept", zap.Int("removed", removed))
	}
}
