// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs named tasks on exactly one node of the cluster at a
// time. Leadership for a task is a coordinator lease keyed by the task name.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/zap"
)

const (
	defaultRetryBackoff   = 5 * time.Second
	maxRetryBackoffFactor = 12
	releaseTimeout        = 5 * time.Second
	taskKeyLogField       = "taskKey"
)

var (
	ErrNilCoordinator = errors.New("coordinator cannot be nil")
	ErrNilMeasures    = errors.New("measures cannot be nil")
	ErrEmptyTaskKey   = errors.New("task key cannot be empty")
	ErrAlreadyRunning = errors.New("task is already scheduled")
	ErrNotScheduled   = errors.New("task is not scheduled")
	ErrStopped        = errors.New("scheduler is stopped")
)

// Coordinator is the part of the cluster coordinator the scheduler needs.
type Coordinator interface {
	coordinator.C
	NodeID() string
	LeaseTTL() time.Duration
}

// Config is the "scheduler" configuration section.
type Config struct {
	// RetryBackoff is the initial pause between acquisition attempts. Pauses
	// grow exponentially up to twelve times this value.
	// (Optional). Defaults to 5 seconds.
	RetryBackoff time.Duration

	// AcquireTimeout is how long a single acquisition attempt may block.
	// (Optional). Defaults to zero, a single attempt.
	AcquireTimeout time.Duration

	// RenewInterval is how often a leader renews its lease.
	// (Optional). Defaults to a third of the lease time to live.
	RenewInterval time.Duration
}

// Task is the work run while this node leads its key. It must return when ctx
// is canceled; cancellation means leadership was lost or the task was stopped.
type Task func(ctx context.Context) error

// Status describes a scheduled task.
type Status struct {
	Key    string `json:"key"`
	Leader bool   `json:"leader"`
}

type scheduled struct {
	key          string
	task         Task
	retryBackoff time.Duration
	cancel       context.CancelFunc
	done         chan struct{}
	leader       atomic.Bool
}

// Scheduler runs leader-gated tasks for one node.
type Scheduler struct {
	c        Coordinator
	holderID string
	config   Config
	measures *Measures
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lock  sync.Mutex
	tasks map[string]*scheduled
}

func New(c Coordinator, config Config, measures *Measures, logger *zap.Logger) (*Scheduler, error) {
	if c == nil {
		return nil, ErrNilCoordinator
	}
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	if config.RenewInterval <= 0 {
		config.RenewInterval = c.LeaseTTL() / 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:        c,
		holderID: c.NodeID(),
		config:   config,
		measures: measures,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*scheduled),
	}, nil
}

// RunExclusive schedules task under taskKey. The scheduler keeps trying to
// acquire the lease, runs task while it holds it, and cancels the task's
// context as soon as a renewal fails. A zero retryBackoff uses the configured
// default.
func (s *Scheduler) RunExclusive(taskKey string, task Task, retryBackoff time.Duration) error {
	if taskKey == "" {
		return ErrEmptyTaskKey
	}
	if retryBackoff <= 0 {
		retryBackoff = s.config.RetryBackoff
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ctx.Err() != nil {
		return ErrStopped
	}
	if _, ok := s.tasks[taskKey]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, taskKey)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	st := &scheduled{
		key:          taskKey,
		task:         task,
		retryBackoff: retryBackoff,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	s.tasks[taskKey] = st
	go s.run(ctx, st)
	return nil
}

// Stop cancels the task, waits for it to return and releases its lease.
func (s *Scheduler) Stop(taskKey string) error {
	s.lock.Lock()
	st, ok := s.tasks[taskKey]
	delete(s.tasks, taskKey)
	s.lock.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotScheduled, taskKey)
	}
	st.cancel()
	<-st.done
	return nil
}

// StopAll stops every task. The scheduler accepts no new tasks afterwards.
func (s *Scheduler) StopAll() {
	s.lock.Lock()
	s.cancel()
	tasks := s.tasks
	s.tasks = make(map[string]*scheduled)
	s.lock.Unlock()

	for _, st := range tasks {
		<-st.done
	}
}

// IsLeader reports whether this node currently runs taskKey.
func (s *Scheduler) IsLeader(taskKey string) bool {
	s.lock.Lock()
	st, ok := s.tasks[taskKey]
	s.lock.Unlock()
	return ok && st.leader.Load()
}

// Tasks lists the scheduled tasks sorted by key.
func (s *Scheduler) Tasks() []Status {
	s.lock.Lock()
	statuses := make([]Status, 0, len(s.tasks))
	for key, st := range s.tasks {
		statuses = append(statuses, Status{Key: key, Leader: st.leader.Load()})
	}
	s.lock.Unlock()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Key < statuses[j].Key })
	return statuses
}

func (s *Scheduler) newBackOff(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = initial * maxRetryBackoffFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Scheduler) run(ctx context.Context, st *scheduled) {
	defer close(st.done)
	logger := s.logger.With(zap.String(taskKeyLogField, st.key))
	b := s.newBackOff(st.retryBackoff)

	for ctx.Err() == nil {
		acquired, err := s.c.TryAcquire(ctx, st.key, s.holderID, s.config.AcquireTimeout)
		if err != nil && ctx.Err() == nil {
			logger.Warn("failed to acquire leadership", zap.Error(err))
		}
		if !acquired {
			if !sleep(ctx, b.NextBackOff()) {
				break
			}
			continue
		}

		b.Reset()
		logger.Info("acquired leadership")
		s.measures.Acquired.WithLabelValues(st.key).Inc()
		st.leader.Store(true)
		s.measures.Leader.WithLabelValues(st.key).Set(1)

		lost := s.lead(ctx, st, logger)

		st.leader.Store(false)
		s.measures.Leader.WithLabelValues(st.key).Set(0)
		if lost {
			s.measures.Lost.WithLabelValues(st.key).Inc()
			logger.Warn("lost leadership")
			continue
		}
		s.release(st.key, logger)
		if !sleep(ctx, st.retryBackoff) {
			break
		}
	}
}

// lead runs the task while renewing the lease. It returns true when a renewal
// failed; otherwise the task ended on its own or ctx was canceled.
func (s *Scheduler) lead(ctx context.Context, st *scheduled, logger *zap.Logger) bool {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- safeRun(taskCtx, st.task)
	}()

	ticker := time.NewTicker(s.config.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				logger.Error("task failed", zap.Error(err))
			}
			return false
		case <-ticker.C:
			renewed, err := s.c.TryAcquire(ctx, st.key, s.holderID, 0)
			if renewed {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			if err != nil {
				logger.Warn("failed to renew lease", zap.Error(err))
			}
			cancel()
			<-done
			return true
		}
	}
}

func (s *Scheduler) release(key string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.c.Release(ctx, key, s.holderID); err != nil {
		logger.Warn("failed to release lease", zap.Error(err))
	}
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Periodic returns a task that calls fn right away and then every interval
// until its context is canceled.
func Periodic(interval time.Duration, fn func(ctx context.Context)) Task {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			fn(ctx)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}
