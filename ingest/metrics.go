// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

const (
	DeliveryCounter = "ingest_delivery_count"

	OutcomeLabel = "outcome"
)

func ProvideMetrics() fx.Option {
	return touchstone.CounterVec(
		prometheus.CounterOpts{
			Name: DeliveryCounter,
			Help: "The total number of inbound deliveries by outcome",
		},
		OutcomeLabel,
	)
}

type Measures struct {
	fx.In

	Deliveries *prometheus.CounterVec `name:"ingest_delivery_count"`
}

func NewTestMeasures() *Measures {
	return &Measures{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{Name: DeliveryCounter}, []string{OutcomeLabel}),
	}
}
