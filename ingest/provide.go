// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type IngestorIn struct {
	fx.In

	Registry *subscription.Registry
	Repos    *entity.Repositories
	Measures Measures
	Logger   *zap.Logger
}

func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			func(in IngestorIn) (*Ingestor, error) {
				return NewIngestor(in.Registry, in.Repos, &in.Measures, in.Logger)
			},
			NewPublisher,
		),
	)
}
