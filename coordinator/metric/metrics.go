// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	BackendDurationSeconds     = "coordinator_backend_duration_seconds"
	BackendQuerySuccessCounter = "coordinator_backend_success_count"
	BackendQueryFailureCounter = "coordinator_backend_failure_count"
	LeaseAcquiredCounter       = "coordinator_lease_acquired_count"
	LeaseContendedCounter      = "coordinator_lease_contended_count"
	ClusterMembersGauge        = "coordinator_cluster_members"

	// DynamoDB metrics
	CapacityUnitConsumedCounter = "coordinator_dynamodb_capacity_unit_consumed"
)

// Labels
const (
	TypeLabel = "type"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.HistogramVec(
			prometheus.HistogramOpts{
				Name:    BackendDurationSeconds,
				Help:    "A histogram of latencies for backend requests.",
				Buckets: []float64{0.0625, 0.125, .25, .5, 1, 5, 10, 20, 40, 80, 160},
			},
			TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: BackendQuerySuccessCounter,
				Help: "The total number of successful backend operations",
			},
			TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: BackendQueryFailureCounter,
				Help: "The total number of failed backend operations",
			},
			TypeLabel,
		),
		touchstone.Counter(
			prometheus.CounterOpts{
				Name: LeaseAcquiredCounter,
				Help: "The total number of successful lease acquisitions and renewals",
			},
		),
		touchstone.Counter(
			prometheus.CounterOpts{
				Name: LeaseContendedCounter,
				Help: "The total number of lease attempts that found another live holder",
			},
		),
		touchstone.Gauge(
			prometheus.GaugeOpts{
				Name: ClusterMembersGauge,
				Help: "The number of live cluster members seen by this node",
			},
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: CapacityUnitConsumedCounter,
				Help: "The number of capacity units consumed by the operation.",
			},
			TypeLabel,
		),
	)
}

type Measures struct {
	fx.In
	BackendDuration      prometheus.ObserverVec `name:"coordinator_backend_duration_seconds"`
	BackendSuccessCount  *prometheus.CounterVec `name:"coordinator_backend_success_count"`
	BackendFailureCount  *prometheus.CounterVec `name:"coordinator_backend_failure_count"`
	LeaseAcquired        prometheus.Counter     `name:"coordinator_lease_acquired_count"`
	LeaseContended       prometheus.Counter     `name:"coordinator_lease_contended_count"`
	ClusterMembers       prometheus.Gauge       `name:"coordinator_cluster_members"`
	CapacityUnitConsumed *prometheus.CounterVec `name:"coordinator_dynamodb_capacity_unit_consumed"`
}

// NewTestMeasures builds unregistered collectors for use outside of an fx container.
func NewTestMeasures() *Measures {
	return &Measures{
		BackendDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: BackendDurationSeconds}, []string{TypeLabel}),
		BackendSuccessCount:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: BackendQuerySuccessCounter}, []string{TypeLabel}),
		BackendFailureCount:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: BackendQueryFailureCounter}, []string{TypeLabel}),
		LeaseAcquired:        prometheus.NewCounter(prometheus.CounterOpts{Name: LeaseAcquiredCounter}),
		LeaseContended:       prometheus.NewCounter(prometheus.CounterOpts{Name: LeaseContendedCounter}),
		ClusterMembers:       prometheus.NewGauge(prometheus.GaugeOpts{Name: ClusterMembersGauge}),
		CapacityUnitConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{Name: CapacityUnitConsumedCounter}, []string{TypeLabel}),
	}
}
