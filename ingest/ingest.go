// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package ingest is the boundary between protocol adapters and the entity
// repositories: inbound deliveries are checked against their subscription and
// routed per kind, outbound snapshots are built and rewritten per dataset.
package ingest

import (
	"context"
	"errors"

	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/model"
	"github.com/xmidt-org/sirihub/subscription"
	"go.uber.org/zap"
)

const (
	AcceptedDelivery = "accepted"
	DroppedDelivery  = "dropped"
)

var ErrNilMeasures = errors.New("measures cannot be nil")

// Report counts the outcome of each entity in one delivery.
type Report struct {
	SubscriptionID string                    `json:"subscriptionId"`
	DatasetID      string                    `json:"datasetId,omitempty"`
	Dropped        bool                      `json:"dropped,omitempty"`
	Outcomes       map[string]map[string]int `json:"outcomes,omitempty"`
	Failures       int                       `json:"failures,omitempty"`
}

func (r *Report) add(kind string, o entity.Outcome) {
	if r.Outcomes == nil {
		r.Outcomes = make(map[string]map[string]int)
	}
	if r.Outcomes[kind] == nil {
		r.Outcomes[kind] = make(map[string]int)
	}
	r.Outcomes[kind][o.String()]++
}

// Count returns the number of entities of kind that ended with o.
func (r Report) Count(kind string, o entity.Outcome) int {
	return r.Outcomes[kind][o.String()]
}

// Ingestor accepts decoded deliveries for registered subscriptions.
type Ingestor struct {
	registry *subscription.Registry
	repos    *entity.Repositories
	measures *Measures
	logger   *zap.Logger
}

func NewIngestor(registry *subscription.Registry, repos *entity.Repositories, measures *Measures, logger *zap.Logger) (*Ingestor, error) {
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		registry: registry,
		repos:    repos,
		measures: measures,
		logger:   logger,
	}, nil
}

// Deliver stores every entity of d under the dataset of the subscription.
// Deliveries for unknown or dead subscriptions are dropped with a warning.
// A pending subscription is activated by its first delivery.
func (i *Ingestor) Deliver(ctx context.Context, subscriptionID string, d *model.ServiceDelivery) (Report, error) {
	report := Report{SubscriptionID: subscriptionID}
	logger := i.logger.With(zap.String("subscriptionId", subscriptionID))

	desc, found, err := i.registry.Get(ctx, subscriptionID)
	if err != nil {
		return report, err
	}
	if !found || desc.State == subscription.Dead {
		logger.Warn("dropping delivery", zap.Bool("known", found), zap.Int("entities", d.Len()))
		report.Dropped = true
		i.measures.Deliveries.WithLabelValues(DroppedDelivery).Inc()
		return report, nil
	}
	report.DatasetID = desc.DatasetID

	if desc.State == subscription.Pending {
		if _, err := i.registry.Activate(ctx, subscriptionID); err != nil {
			return report, err
		}
	}
	if _, err := i.registry.Touch(ctx, subscriptionID); err != nil {
		return report, err
	}
	if d == nil {
		i.measures.Deliveries.WithLabelValues(AcceptedDelivery).Inc()
		return report, nil
	}

	dataset := desc.DatasetID
	var firstErr error
	record := func(kind string, o entity.Outcome, err error) {
		if err != nil {
			report.Failures++
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("failed to store entity", zap.String("kind", kind), zap.Error(err))
			return
		}
		report.add(kind, o)
	}
	for _, s := range d.Situations {
		o, err := i.repos.Situations.Upsert(ctx, dataset, s)
		record(entity.SituationsKind, o, err)
	}
	for _, v := range d.VehicleActivities {
		o, err := i.repos.Vehicles.Upsert(ctx, dataset, v)
		record(entity.VehiclesKind, o, err)
	}
	for _, j := range d.EstimatedVehicleJourneys {
		o, err := i.repos.Journeys.Upsert(ctx, dataset, j)
		record(entity.JourneysKind, o, err)
	}
	for _, f := range d.DatedTimetableVersionFrame {
		o, err := i.repos.Timetables.Upsert(ctx, dataset, f)
		record(entity.TimetablesKind, o, err)
	}

	i.measures.Deliveries.WithLabelValues(AcceptedDelivery).Inc()
	logger.Debug("delivery stored", zap.Int("entities", d.Len()), zap.Int("failures", report.Failures))
	return report, firstErr
}

// Acknowledge applies the producer's answer to a subscription request.
func (i *Ingestor) Acknowledge(ctx context.Context, subscriptionID string, accepted bool) error {
	var err error
	if accepted {
		_, err = i.registry.Activate(ctx, subscriptionID)
	} else {
		_, err = i.registry.Stop(ctx, subscriptionID)
	}
	return err
}

// Heartbeat records a producer heartbeat.
func (i *Ingestor) Heartbeat(ctx context.Context, subscriptionID string) error {
	_, err := i.registry.Touch(ctx, subscriptionID)
	return err
}
