// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	LeadershipAcquiredCounter = "scheduler_leadership_acquired_count"
	LeadershipLostCounter     = "scheduler_leadership_lost_count"
	LeaderGauge               = "scheduler_leader"
)

// Labels
const (
	TaskLabel = "task"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: LeadershipAcquiredCounter,
				Help: "The total number of times this node became leader of a task",
			},
			TaskLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: LeadershipLostCounter,
				Help: "The total number of times a lease renewal failed while leading",
			},
			TaskLabel,
		),
		touchstone.GaugeVec(
			prometheus.GaugeOpts{
				Name: LeaderGauge,
				Help: "1 while this node leads the task",
			},
			TaskLabel,
		),
	)
}

// Measures describes the defined metrics that will be used by the scheduler.
type Measures struct {
	fx.In

	Acquired *prometheus.CounterVec `name:"scheduler_leadership_acquired_count"`
	Lost     *prometheus.CounterVec `name:"scheduler_leadership_lost_count"`
	Leader   *prometheus.GaugeVec   `name:"scheduler_leader"`
}

func NewTestMeasures() *Measures {
	return &Measures{
		Acquired: prometheus.NewCounterVec(prometheus.CounterOpts{Name: LeadershipAcquiredCounter}, []string{TaskLabel}),
		Lost:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: LeadershipLostCounter}, []string{TaskLabel}),
		Leader:   prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: LeaderGauge}, []string{TaskLabel}),
	}
}
