// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/sirihub/admin"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/db"
	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/expiring"
	"github.com/xmidt-org/sirihub/ingest/kafka"
	"github.com/xmidt-org/sirihub/poll"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"github.com/xmidt-org/sirihub/transform"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// NodeConfig is the "node" configuration section.
type NodeConfig struct {
	// ID names this node in the cluster. (Optional). Defaults to the hostname.
	ID string

	// Address is advertised to other members.
	Address string
}

func unmarshalKey[T any](key string) func(*viper.Viper) (T, error) {
	return func(v *viper.Viper) (T, error) {
		var t T
		if err := v.UnmarshalKey(key, &t); err != nil {
			return t, fmt.Errorf("config %s: %w", key, err)
		}
		return t, nil
	}
}

func coordinatorConfig(v *viper.Viper) (coordinator.Config, error) {
	config, err := unmarshalKey[coordinator.Config]("coordinator")(v)
	if err != nil {
		return config, err
	}
	node, err := unmarshalKey[NodeConfig]("node")(v)
	if err != nil {
		return config, err
	}
	if node.ID != "" {
		config.NodeID = node.ID
	}
	if node.Address != "" {
		config.Address = node.Address
	}
	if config.NodeID == "" {
		if config.NodeID, err = os.Hostname(); err != nil {
			return config, fmt.Errorf("node id: %w", err)
		}
	}
	return config, nil
}

func tracingConfig(v *viper.Viper) (candlelight.Config, error) {
	config, err := unmarshalKey[candlelight.Config]("tracing")(v)
	if err != nil {
		return candlelight.Config{}, err
	}
	config.ApplicationName = applicationName
	return config, nil
}

// provideConfig makes every configuration section available to the container.
func provideConfig() fx.Option {
	return fx.Provide(
		coordinatorConfig,
		tracingConfig,
		unmarshalKey[db.Configs]("coordinator"),
		unmarshalKey[expiring.Config]("store"),
		unmarshalKey[entity.Config]("entities"),
		unmarshalKey[scheduler.Config]("scheduler"),
		unmarshalKey[subscription.Config]("health"),
		unmarshalKey[[]subscription.FeedConfig]("subscriptions"),
		unmarshalKey[transform.Config]("mapping"),
		unmarshalKey[kafka.Config]("kafka"),
		unmarshalKey[poll.Config]("poll"),
		unmarshalKey[admin.Config]("admin"),
		unmarshalKey[touchstone.Config]("prometheus"),
	)
}
