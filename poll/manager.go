// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package poll drives the subscriptions whose data has to be fetched. Each
// fetching subscription gets one leader-gated task, so exactly one node in
// the cluster polls a given producer at a time.
package poll

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/model"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"go.uber.org/zap"
)

const (
	taskPrefix = "poll/"

	defaultInterval     = 30 * time.Second
	defaultSyncInterval = 15 * time.Second
)

var (
	ErrNilFetcher   = errors.New("fetcher cannot be nil")
	ErrNilScheduler = errors.New("scheduler cannot be nil")
)

// Config is the "poll" configuration section.
type Config struct {
	// DefaultInterval applies to subscriptions without a poll interval.
	// (Optional). Defaults to 30 seconds.
	DefaultInterval time.Duration

	// SyncInterval is how often the subscription list is re-read.
	// (Optional). Defaults to 15 seconds.
	SyncInterval time.Duration

	// Timeout bounds one fetch. (Optional). Defaults to the poll interval.
	Timeout time.Duration

	// Requestor is sent to producers as the requestor reference.
	Requestor string
}

// Subscriptions is the read side of the registry.
type Subscriptions interface {
	List(ctx context.Context) ([]subscription.Descriptor, error)
	Get(ctx context.Context, id string) (subscription.Descriptor, bool, error)
}

// Runner schedules leader-gated tasks. *scheduler.Scheduler implements it.
type Runner interface {
	RunExclusive(taskKey string, task scheduler.Task, retryBackoff time.Duration) error
	Stop(taskKey string) error
}

// Deliverer accepts fetched deliveries. *ingest.Ingestor implements it.
type Deliverer interface {
	Deliver(ctx context.Context, subscriptionID string, d *model.ServiceDelivery) (ingest.Report, error)
}

// Manager keeps one poll task per live fetching subscription.
type Manager struct {
	subscriptions Subscriptions
	runner        Runner
	fetcher       Fetcher
	deliverer     Deliverer
	config        Config
	logger        *zap.Logger

	lock    sync.Mutex
	running map[string]time.Duration
}

func NewManager(subscriptions Subscriptions, runner Runner, fetcher Fetcher, deliverer Deliverer, config Config, logger *zap.Logger) (*Manager, error) {
	if runner == nil {
		return nil, ErrNilScheduler
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = defaultInterval
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = defaultSyncInterval
	}
	return &Manager{
		subscriptions: subscriptions,
		runner:        runner,
		fetcher:       fetcher,
		deliverer:     deliverer,
		config:        config,
		logger:        logger,
		running:       make(map[string]time.Duration),
	}, nil
}

// TaskKey is the lease key of the poll task of a subscription.
func TaskKey(subscriptionID string) string {
	return taskPrefix + subscriptionID
}

func (m *Manager) interval(d subscription.Descriptor) time.Duration {
	if d.PollInterval > 0 {
		return d.PollInterval
	}
	return m.config.DefaultInterval
}

// Sync starts tasks for new fetching subscriptions, restarts those whose
// interval changed, and stops tasks of subscriptions that died or went away.
func (m *Manager) Sync(ctx context.Context) error {
	list, err := m.subscriptions.List(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]subscription.Descriptor)
	for _, d := range list {
		if d.Mode.Fetches() && d.State != subscription.Dead {
			wanted[d.ID] = d
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	for id, interval := range m.running {
		d, ok := wanted[id]
		if ok && m.interval(d) == interval {
			continue
		}
		m.stop(id)
	}
	for id, d := range wanted {
		if _, ok := m.running[id]; ok {
			continue
		}
		interval := m.interval(d)
		if err := m.runner.RunExclusive(TaskKey(id), m.task(id, interval), 0); err != nil {
			m.logger.Error("failed to schedule poll task", zap.String("subscriptionId", id), zap.Error(err))
			continue
		}
		m.running[id] = interval
		m.logger.Info("polling subscription", zap.String("subscriptionId", id), zap.Duration("interval", interval))
	}
	return nil
}

// stop must be called with the lock held.
func (m *Manager) stop(id string) {
	delete(m.running, id)
	if err := m.runner.Stop(TaskKey(id)); err != nil {
		m.logger.Warn("failed to stop poll task", zap.String("subscriptionId", id), zap.Error(err))
		return
	}
	m.logger.Info("stopped polling subscription", zap.String("subscriptionId", id))
}

// Polling lists the subscription ids with a poll task on this node.
func (m *Manager) Polling() []string {
	m.lock.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.lock.Unlock()
	sort.Strings(ids)
	return ids
}

func (m *Manager) task(id string, interval time.Duration) scheduler.Task {
	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	return scheduler.Periodic(interval, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		m.Poll(ctx, id)
	})
}

// Poll fetches the current delivery of one subscription and hands it to the
// ingest layer. Errors are logged; the next tick tries again.
func (m *Manager) Poll(ctx context.Context, id string) {
	logger := m.logger.With(zap.String("subscriptionId", id))
	d, found, err := m.subscriptions.Get(ctx, id)
	if err != nil {
		logger.Error("failed to read subscription", zap.Error(err))
		return
	}
	if !found || d.State == subscription.Dead {
		logger.Debug("skipping poll of missing or dead subscription")
		return
	}

	delivery, err := m.fetcher.Fetch(ctx, d)
	if err != nil {
		logger.Error("failed to fetch delivery", zap.Error(err))
		return
	}
	report, err := m.deliverer.Deliver(ctx, id, delivery)
	if err != nil {
		logger.Error("failed to store fetched delivery", zap.Error(err))
		return
	}
	logger.Debug("fetched delivery", zap.Int("entities", delivery.Len()), zap.Bool("dropped", report.Dropped))
}

// Run syncs on every tick until ctx is canceled, then stops every poll task
// it started.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SyncInterval)
	defer ticker.Stop()
	for {
		if err := m.Sync(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("failed to sync poll tasks", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			m.lock.Lock()
			for id := range m.running {
				m.stop(id)
			}
			m.lock.Unlock()
			return
		case <-ticker.C:
		}
	}
}
