// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/model"
	"github.com/xmidt-org/sirihub/transform"
)

var ErrUnknownKind = errors.New("unknown entity kind")

// Publisher builds outbound snapshots.
type Publisher struct {
	repos       *entity.Repositories
	policies    *transform.Policies
	transformer *transform.Transformer
}

func NewPublisher(repos *entity.Repositories, policies *transform.Policies, transformer *transform.Transformer) *Publisher {
	return &Publisher{
		repos:       repos,
		policies:    policies,
		transformer: transformer,
	}
}

// Snapshot returns the live entities of kind as a delivery, rewritten with the
// mapping policy of datasetID. An empty datasetID selects every dataset and
// applies no policy.
func (p *Publisher) Snapshot(ctx context.Context, kind, datasetID string) (*model.ServiceDelivery, error) {
	d := &model.ServiceDelivery{}
	var err error
	switch kind {
	case entity.SituationsKind:
		d.Situations, err = snapshot(ctx, p.repos.Situations, datasetID)
	case entity.VehiclesKind:
		d.VehicleActivities, err = snapshot(ctx, p.repos.Vehicles, datasetID)
	case entity.JourneysKind:
		d.EstimatedVehicleJourneys, err = snapshot(ctx, p.repos.Journeys, datasetID)
	case entity.TimetablesKind:
		d.DatedTimetableVersionFrame, err = snapshot(ctx, p.repos.Timetables, datasetID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	d.ResponseTimestamp = p.repos.Vehicles.Now()

	if datasetID != "" {
		if adapters := p.policies.ForDataset(datasetID); len(adapters) > 0 {
			p.transformer.Transform(d, adapters)
		}
	}
	return d, nil
}

func snapshot[V any](ctx context.Context, r *entity.Repository[V], datasetID string) ([]V, error) {
	if datasetID == "" {
		return r.GetAll(ctx)
	}
	return r.GetAllByDataset(ctx, datasetID)
}
