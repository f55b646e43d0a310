// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"

	"github.com/xmidt-org/sirihub/coordinator/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type CoordinatorIn struct {
	fx.In
	Config   Config
	Backend  Backend
	Measures metric.Measures
	LC       fx.Lifecycle
	Logger   *zap.Logger
}

type CoordinatorOut struct {
	fx.Out
	Coordinator *Coordinator
	C           C
}

// Provide constructs the node's coordinator and ties its membership heartbeat
// to the application lifecycle.
func Provide() fx.Option {
	return fx.Provide(
		func(in CoordinatorIn) (CoordinatorOut, error) {
			c, err := New(in.Config, in.Backend, &in.Measures, in.Logger)
			if err != nil {
				return CoordinatorOut{}, err
			}
			in.LC.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return c.Start(ctx)
				},
				OnStop: c.Stop,
			})
			return CoordinatorOut{Coordinator: c, C: c}, nil
		},
	)
}
