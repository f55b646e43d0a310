// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"sync"
	"time"

	"github.com/xmidt-org/sirihub/expiring"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"github.com/xmidt-org/sirihub/transform"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sweepTaskKey    = "sweep"
	tableTaskPrefix = "tables/"
	tablePullPeriod = 30 * time.Second
)

type TasksIn struct {
	fx.In

	StoreConfig expiring.Config
	Scheduler   *scheduler.Scheduler
	Sweeper     *expiring.Sweeper
	Monitor     *subscription.HealthMonitor
	Tables      *transform.TableSync
	LC          fx.Lifecycle
	Logger      *zap.Logger
}

// scheduleTasks starts the background work of the node. Cluster-wide work is
// leader-gated through the scheduler. Node-local work runs on every node.
func scheduleTasks(in TasksIn) {
	var (
		ctx, cancel = context.WithCancel(context.Background())
		wg          sync.WaitGroup
	)
	local := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if in.StoreConfig.ClusterShared {
				if period := in.Sweeper.Period(); period > 0 {
					err := in.Scheduler.RunExclusive(sweepTaskKey, scheduler.Periodic(period, func(ctx context.Context) {
						in.Sweeper.SweepAll(ctx)
					}), 0)
					if err != nil {
						return err
					}
				}
			} else {
				local(func(ctx context.Context) {
					_ = in.Sweeper.Run(ctx)
				})
			}

			if err := in.Scheduler.RunExclusive(subscription.HealthTaskKey,
				scheduler.Periodic(in.Monitor.Interval(), in.Monitor.Run), 0); err != nil {
				return err
			}

			for _, name := range in.Tables.Sources() {
				publish := func(ctx context.Context) {
					if err := in.Tables.Publish(ctx, name); err != nil && ctx.Err() == nil {
						in.Logger.Error("failed to publish lookup table", zap.String("table", name), zap.Error(err))
					}
				}
				err := in.Scheduler.RunExclusive(tableTaskPrefix+name,
					scheduler.Periodic(in.Tables.RefreshInterval(name), publish), 0)
				if err != nil {
					return err
				}
			}
			local(func(ctx context.Context) {
				pullTables(ctx, in.Tables, in.Logger)
			})
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

func pullTables(ctx context.Context, tables *transform.TableSync, logger *zap.Logger) {
	ticker := time.NewTicker(tablePullPeriod)
	defer ticker.Stop()
	for {
		if err := tables.Pull(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("failed to pull lookup tables", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
