// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

const (
	StateGauge = "subscription_state"

	StateLabel = "state"
)

func ProvideMetrics() fx.Option {
	return touchstone.GaugeVec(
		prometheus.GaugeOpts{
			Name: StateGauge,
			Help: "The number of subscriptions in each lifecycle state at the last dump",
		},
		StateLabel,
	)
}

type Measures struct {
	fx.In

	States *prometheus.GaugeVec `name:"subscription_state"`
}

func NewTestMeasures() *Measures {
	return &Measures{
		States: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: StateGauge}, []string{StateLabel}),
	}
}
