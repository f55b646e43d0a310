// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package expiring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

const (
	SweepRemovedCounter = "store_sweep_removed_count"
	SweepFailureCounter = "store_sweep_failure_count"

	StoreLabel = "store"
)

// ProvideMetrics returns the sweep metrics.
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: SweepRemovedCounter,
				Help: "The total number of expired entries removed by the sweep",
			},
			StoreLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: SweepFailureCounter,
				Help: "The total number of sweeps that failed",
			},
			StoreLabel,
		),
	)
}

// Measures describes the defined metrics that will be used by the sweeper.
type Measures struct {
	fx.In

	SweepRemoved *prometheus.CounterVec `name:"store_sweep_removed_count"`
	SweepFailure *prometheus.CounterVec `name:"store_sweep_failure_count"`
}

// NewTestMeasures returns unregistered measures for tests.
func NewTestMeasures() *Measures {
	return &Measures{
		SweepRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: SweepRemovedCounter},
			[]string{StoreLabel},
		),
		SweepFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: SweepFailureCounter},
			[]string{StoreLabel},
		),
	}
}
