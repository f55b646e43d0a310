// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

const (
	RecordCounter = "kafka_record_count"

	OutcomeLabel = "outcome"

	DeliveredRecord   = "delivered"
	UndecodableRecord = "undecodable"
	FailedRecord      = "failed"
)

func ProvideMetrics() fx.Option {
	return touchstone.CounterVec(
		prometheus.CounterOpts{
			Name: RecordCounter,
			Help: "The total number of consumed kafka records by outcome",
		},
		OutcomeLabel,
	)
}

type Measures struct {
	fx.In

	Records *prometheus.CounterVec `name:"kafka_record_count"`
}

func NewTestMeasures() *Measures {
	return &Measures{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{Name: RecordCounter}, []string{OutcomeLabel}),
	}
}
