// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthTaskKey is the lease key of the cluster-wide health check.
const HealthTaskKey = "subscription-health"

const defaultCheckInterval = 30 * time.Second

// HealthMonitor declares stale active subscriptions dead and optionally
// restarts them. Only the node holding HealthTaskKey should run it.
type HealthMonitor struct {
	registry *Registry
	interval time.Duration
	restart  bool
	logger   *zap.Logger
}

func NewHealthMonitor(registry *Registry, config Config, logger *zap.Logger) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := config.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthMonitor{
		registry: registry,
		interval: interval,
		restart:  config.RestartDead,
		logger:   logger,
	}
}

func (m *HealthMonitor) Interval() time.Duration {
	return m.interval
}

// Check stops every active subscription that missed its heartbeat and
// returns how many it stopped. With restart enabled a stopped feed is removed
// and registered again under a new id, starting over as pending.
func (m *HealthMonitor) Check(ctx context.Context) (int, error) {
	list, err := m.registry.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.registry.now()
	dead := 0
	for _, d := range list {
		if d.State != Active || m.registry.healthy(d, now) {
			continue
		}
		logger := m.logger.With(zap.String(subscriptionIDLogField, d.ID), zap.String("dataset", d.DatasetID),
			zap.Stringer("feedKind", d.FeedKind))
		if d.LastDataReceivedAt != nil {
			logger = logger.With(zap.Duration("silentFor", now.Sub(*d.LastDataReceivedAt)))
		}
		logger.Warn("subscription missed its heartbeat")
		if _, err := m.registry.Stop(ctx, d.ID); err != nil {
			return dead, err
		}
		dead++
		if !m.restart {
			continue
		}
		id, _, err := m.registry.Restart(ctx, d.ID)
		if err != nil {
			return dead, err
		}
		logger.Info("subscription restarted", zap.String("newSubscriptionId", id))
	}
	return dead, nil
}

// Run performs one check and refreshes the state gauge. Errors are logged.
func (m *HealthMonitor) Run(ctx context.Context) {
	if _, err := m.Check(ctx); err != nil {
		m.logger.Error("subscription health check failed", zap.Error(err))
	}
	if _, err := m.registry.Dump(ctx); err != nil {
		m.logger.Error("failed to count subscriptions", zap.Error(err))
	}
}
