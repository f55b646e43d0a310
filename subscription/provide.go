// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"fmt"

	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RegistryIn struct {
	fx.In

	Config      Config
	Feeds       []FeedConfig
	Coordinator coordinator.C
	Measures    Measures
	LC          fx.Lifecycle
	Logger      *zap.Logger
}

type RegistryOut struct {
	fx.Out

	Registry *Registry
	Monitor  *HealthMonitor
}

// Provide builds the registry and registers the configured feeds on start.
// Every node registers the same feeds; registration is idempotent.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			func(in RegistryIn) (RegistryOut, error) {
				r, err := NewRegistry(in.Coordinator, in.Config, &in.Measures, in.Logger)
				if err != nil {
					return RegistryOut{}, err
				}
				descriptors := make([]Descriptor, 0, len(in.Feeds))
				for i, f := range in.Feeds {
					d, err := f.Descriptor()
					if err != nil {
						return RegistryOut{}, fmt.Errorf("subscriptions[%d]: %w", i, err)
					}
					descriptors = append(descriptors, d)
				}
				in.LC.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						for _, d := range descriptors {
							if _, err := r.Register(ctx, d); err != nil {
								return err
							}
						}
						return nil
					},
				})
				return RegistryOut{
					Registry: r,
					Monitor:  NewHealthMonitor(r, in.Config, in.Logger),
				}, nil
			},
		),
	)
}
