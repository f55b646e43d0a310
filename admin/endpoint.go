// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"

	"github.com/go-kit/kit/endpoint"
)

type leaseRequest struct {
	key string
}

type datasetRequest struct {
	dataset string
}

type subscriptionRequest struct {
	id string
}

type snapshotRequest struct {
	kind    string
	dataset string
}

type clearDatasetResponse struct {
	Dataset string         `json:"dataset"`
	Removed map[string]int `json:"removed"`
}

func newLeasesEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Leases(ctx)
	}
}

func newForceUnlockEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*leaseRequest)
		return nil, s.ForceUnlock(ctx, r.key)
	}
}

func newMembersEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Members(ctx)
	}
}

func newClearDatasetEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*datasetRequest)
		removed, err := s.ClearDataset(ctx, r.dataset)
		if err != nil {
			return nil, err
		}
		return &clearDatasetResponse{Dataset: r.dataset, Removed: removed}, nil
	}
}

func newSubscriptionsEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Subscriptions(ctx)
	}
}

func newSubscriptionEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		return s.Subscription(ctx, request.(*subscriptionRequest).id)
	}
}

func newStartSubscriptionEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		return s.StartSubscription(ctx, request.(*subscriptionRequest).id)
	}
}

func newStopSubscriptionEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		return s.StopSubscription(ctx, request.(*subscriptionRequest).id)
	}
}

func newStatsEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Stats(ctx)
	}
}

func newSnapshotEndpoint(s *Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*snapshotRequest)
		return s.Snapshot(ctx, r.kind, r.dataset)
	}
}
