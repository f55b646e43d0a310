// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/inmem"
	"github.com/xmidt-org/sirihub/coordinator/metric"
	"github.com/xmidt-org/sirihub/expiring"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type StoreIn struct {
	fx.In

	Config      expiring.Config
	Coordinator *coordinator.Coordinator
	Measures    metric.Measures
	Logger      *zap.Logger
}

type StoreOut struct {
	fx.Out

	Store coordinator.C `name:"store"`
}

// newEntityStore picks where entity maps live. Shared stores use the cluster
// coordinator; otherwise a node-local coordinator over memory is used.
func newEntityStore(in StoreIn) (StoreOut, error) {
	if in.Config.ClusterShared {
		return StoreOut{Store: in.Coordinator}, nil
	}
	local, err := coordinator.New(
		coordinator.Config{
			NodeID:   in.Coordinator.NodeID(),
			LeaseTTL: in.Coordinator.LeaseTTL(),
		},
		inmem.NewInMem(),
		&in.Measures,
		in.Logger.Named("local-store"),
	)
	if err != nil {
		return StoreOut{}, err
	}
	return StoreOut{Store: local}, nil
}

type SweeperIn struct {
	fx.In

	Config   expiring.Config
	Measures expiring.Measures
	Logger   *zap.Logger
}

func provideStore() fx.Option {
	return fx.Options(
		expiring.ProvideMetrics(),
		fx.Provide(
			newEntityStore,
			func(in SweeperIn) *expiring.Sweeper {
				return expiring.NewSweeper(in.Config, &in.Measures, in.Logger)
			},
		),
	)
}
