// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/arrange/arrangehttp"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// ServerKey is the configuration key of the admin listener.
	ServerKey = "admin.server"

	// ServerName names the admin *mux.Router component.
	ServerName = "servers.admin"

	defaultAddress           = ":6600"
	defaultReadHeaderTimeout = 10 * time.Second
)

type RoutesIn struct {
	fx.In

	Router      *mux.Router `name:"servers.admin"`
	Config      Config
	Coordinator *coordinator.Coordinator
	Registry    *subscription.Registry
	Repos       *entity.Repositories
	Publisher   *ingest.Publisher
	Scheduler   *scheduler.Scheduler
	Tracing     candlelight.Tracing
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// BuildRoutes installs the admin API on the admin server's router.
func BuildRoutes(in RoutesIn) {
	s := &Service{
		Coordinator: in.Coordinator,
		NodeID:      in.Coordinator.NodeID(),
		Registry:    in.Registry,
		Repos:       in.Repos,
		Publisher:   in.Publisher,
		Tasks:       in.Scheduler,
	}
	Route(in.Router, s, in.Config, &in.Tracing, promhttp.HandlerFor(in.Gatherer, promhttp.HandlerOpts{}))
	in.Logger.Info("admin routes installed", zap.String("server", ServerName))
}

// Provide bootstraps the admin server from the "admin.server" configuration
// and binds it to the application lifecycle.
func Provide() fx.Option {
	return fx.Options(
		arrangehttp.Server{
			Name: ServerName,
			Key:  ServerKey,
			ServerFactory: arrangehttp.ServerConfig{
				Address:           defaultAddress,
				ReadHeaderTimeout: defaultReadHeaderTimeout,
			},
		}.Provide(),
		fx.Invoke(BuildRoutes),
	)
}
