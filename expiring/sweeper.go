// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package expiring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is anything the Sweeper can drive.
type Sweepable interface {
	Name() string
	Sweep(ctx context.Context) (int, error)
}

// Sweeper drives Sweep across every registered store from a single loop.
type Sweeper struct {
	period   time.Duration
	measures *Measures
	logger   *zap.Logger

	lock   sync.RWMutex
	stores []Sweepable
}

// NewSweeper builds a sweeper with the period from config.
func NewSweeper(config Config, measures *Measures, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if measures == nil {
		measures = NewTestMeasures()
	}
	period := config.SweepPeriod
	if period == 0 {
		period = defaultSweepPeriod
	}
	return &Sweeper{
		period:   period,
		measures: measures,
		logger:   logger,
	}
}

// Period returns the sweep interval. A value <= 0 means sweeping is disabled.
func (s *Sweeper) Period() time.Duration {
	return s.period
}

// Register adds stores to the sweep.
func (s *Sweeper) Register(stores ...Sweepable) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stores = append(s.stores, stores...)
}

// SweepAll sweeps every registered store once and returns the total removed.
// A failing store does not stop the others.
func (s *Sweeper) SweepAll(ctx context.Context) int {
	s.lock.RLock()
	stores := make([]Sweepable, len(s.stores))
	copy(stores, s.stores)
	s.lock.RUnlock()

	total := 0
	for _, st := range stores {
		if ctx.Err() != nil {
			break
		}
		removed, err := st.Sweep(ctx)
		if removed > 0 {
			s.measures.SweepRemoved.WithLabelValues(st.Name()).Add(float64(removed))
			s.logger.Debug("swept expired entries", zap.String(StoreLabel, st.Name()), zap.Int("removed", removed))
		}
		if err != nil {
			s.measures.SweepFailure.WithLabelValues(st.Name()).Inc()
			s.logger.Error("sweep failed", zap.String(StoreLabel, st.Name()), zap.Error(err))
		}
		total += removed
	}
	return total
}

// Run sweeps on every tick until ctx is done. It returns immediately when
// sweeping is disabled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.period <= 0 {
		s.logger.Info("store sweep disabled")
		return nil
	}
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}
