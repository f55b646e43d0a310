// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"context"

	"github.com/xmidt-org/sirihub/ingest"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ConsumerIn struct {
	fx.In

	Config   Config
	Ingestor *ingest.Ingestor
	Measures Measures
	LC       fx.Lifecycle
	Logger   *zap.Logger
}

// Provide starts a consumer on application start when the section is enabled.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Invoke(
			func(in ConsumerIn) error {
				if !in.Config.Enabled {
					in.Logger.Info("kafka intake disabled")
					return nil
				}
				c, err := NewConsumer(in.Config, in.Ingestor, &in.Measures, in.Logger)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithCancel(context.Background())
				done := make(chan struct{})
				in.LC.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go func() {
							defer close(done)
							if err := c.Run(ctx); err != nil {
								in.Logger.Error("kafka consumer stopped", zap.Error(err))
							}
						}()
						return nil
					},
					OnStop: func(stopCtx context.Context) error {
						cancel()
						select {
						case <-done:
							return nil
						case <-stopCtx.Done():
							return stopCtx.Err()
						}
					},
				})
				return nil
			},
		),
	)
}
