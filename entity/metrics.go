// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

const (
	UpsertCounter = "entity_upsert_count"
	LiveGauge     = "entity_live"

	KindLabel    = "kind"
	OutcomeLabel = "outcome"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: UpsertCounter,
				Help: "The total number of upserts by entity kind and outcome",
			},
			KindLabel, OutcomeLabel,
		),
		touchstone.GaugeVec(
			prometheus.GaugeOpts{
				Name: LiveGauge,
				Help: "The number of live entities by kind at the last count",
			},
			KindLabel,
		),
	)
}

type Measures struct {
	fx.In

	Upserts *prometheus.CounterVec `name:"entity_upsert_count"`
	Live    *prometheus.GaugeVec   `name:"entity_live"`
}

func NewTestMeasures() *Measures {
	return &Measures{
		Upserts: prometheus.NewCounterVec(prometheus.CounterOpts{Name: UpsertCounter}, []string{KindLabel, OutcomeLabel}),
		Live:    prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: LiveGauge}, []string{KindLabel}),
	}
}
