// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/cassandra"
	"github.com/xmidt-org/sirihub/coordinator/dynamodb"
	"github.com/xmidt-org/sirihub/coordinator/inmem"
	"github.com/xmidt-org/sirihub/coordinator/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Configs selects the backend. At most one should be set; with neither the
// cluster map lives in process memory, which is only correct for a single node.
type Configs struct {
	Dynamo   *dynamodb.Config
	Yugabyte *cassandra.Config
}

type SetupIn struct {
	fx.In
	Configs  Configs
	Measures metric.Measures
	LC       fx.Lifecycle
	Logger   *zap.Logger
}

func Provide() fx.Option {
	return fx.Options(
		metric.ProvideMetrics(),
		fx.Provide(
			SetupBackend,
		),
	)
}

func SetupBackend(in SetupIn) (coordinator.Backend, error) {
	if in.Configs.Dynamo != nil {
		in.Logger.Info("using dynamodb coordinator backend")
		return dynamodb.NewDynamoDB(*in.Configs.Dynamo, &in.Measures, in.Logger)
	}
	if in.Configs.Yugabyte != nil {
		in.Logger.Info("using yugabyte coordinator backend")
		return cassandra.NewCassandra(*in.Configs.Yugabyte, &in.Measures, in.LC, in.Logger)
	}
	in.Logger.Info("using in memory coordinator backend")
	return inmem.NewInMem(), nil
}
