// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"net/http"

	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ManagerIn struct {
	fx.In

	Config    Config
	Registry  *subscription.Registry
	Scheduler *scheduler.Scheduler
	Ingestor  *ingest.Ingestor
	LC        fx.Lifecycle
	Logger    *zap.Logger
}

// Provide builds the poll manager and runs it for the life of the application.
// The manager is always constructed, so no other component has to depend on it
// for polling to start.
func Provide() fx.Option {
	return fx.Options(
		fx.Provide(
			func(in ManagerIn) (*Manager, error) {
				fetcher := NewHTTPFetcher(&http.Client{Timeout: in.Config.Timeout}, in.Config.Requestor)
				m, err := NewManager(in.Registry, in.Scheduler, fetcher, in.Ingestor, in.Config, in.Logger)
				if err != nil {
					return nil, err
				}
				ctx, cancel := context.WithCancel(context.Background())
				done := make(chan struct{})
				in.LC.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go func() {
							defer close(done)
							m.Run(ctx)
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
				return m, nil
			},
		),
		fx.Invoke(func(*Manager) {}),
	)
}
