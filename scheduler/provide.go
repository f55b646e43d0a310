// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"

	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SchedulerIn struct {
	fx.In

	Config      Config
	Coordinator *coordinator.Coordinator
	Measures    Measures
	LC          fx.Lifecycle
	Logger      *zap.Logger
}

// Provide builds the node's scheduler and stops every task on shutdown.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			func(in SchedulerIn) (*Scheduler, error) {
				s, err := New(in.Coordinator, in.Config, &in.Measures, in.Logger)
				if err != nil {
					return nil, err
				}
				in.LC.Append(fx.Hook{
					OnStop: func(context.Context) error {
						s.StopAll()
						return nil
					},
				})
				return s, nil
			},
		),
	)
}
