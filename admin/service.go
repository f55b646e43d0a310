// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package admin serves the operator API: leases, members, subscriptions,
// per-dataset cleanup, counters and outbound snapshots.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xmidt-org/httpaux/erraux"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/model"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
)

// Tasks reports the leader-gated tasks of this node.
type Tasks interface {
	Tasks() []scheduler.Status
}

// Service implements the operations behind the admin routes.
type Service struct {
	Coordinator coordinator.C
	NodeID      string
	Registry    *subscription.Registry
	Repos       *entity.Repositories
	Publisher   *ingest.Publisher
	Tasks       Tasks
}

func notFound(what, id string) error {
	return &erraux.Error{
		Err:  fmt.Errorf("%s %q not found", what, id),
		Code: http.StatusNotFound,
	}
}

func badRequest(err error) error {
	return &erraux.Error{Err: err, Code: http.StatusBadRequest}
}

func (s *Service) Leases(ctx context.Context) ([]coordinator.Lease, error) {
	return s.Coordinator.Leases(ctx)
}

func (s *Service) ForceUnlock(ctx context.Context, key string) error {
	return s.Coordinator.ForceUnlock(ctx, key)
}

func (s *Service) Members(ctx context.Context) ([]coordinator.Member, error) {
	return s.Coordinator.Members(ctx)
}

// ClearDataset removes every entity of a dataset and returns the number
// removed per kind. Without a cluster-shared store only this node's entities
// are removed.
func (s *Service) ClearDataset(ctx context.Context, dataset string) (map[string]int, error) {
	removed := make(map[string]int)
	for _, c := range s.Repos.All() {
		n, err := c.ClearAllByDataset(ctx, dataset)
		if err != nil {
			return removed, err
		}
		removed[c.Kind()] = n
	}
	return removed, nil
}

func (s *Service) Subscriptions(ctx context.Context) (subscription.Dump, error) {
	return s.Registry.Dump(ctx)
}

func (s *Service) Subscription(ctx context.Context, id string) (subscription.Descriptor, error) {
	d, found, err := s.Registry.Get(ctx, id)
	if err != nil {
		return d, err
	}
	if !found {
		return d, notFound("subscription", id)
	}
	return d, nil
}

// StartSubscription activates a pending subscription or restarts a dead one
// under a new id. It returns the resulting descriptor.
func (s *Service) StartSubscription(ctx context.Context, id string) (subscription.Descriptor, error) {
	d, err := s.Subscription(ctx, id)
	if err != nil {
		return d, err
	}
	if d.State == subscription.Dead {
		next, _, err := s.Registry.Restart(ctx, id)
		if err != nil {
			return d, err
		}
		id = next
	} else if _, err := s.Registry.Activate(ctx, id); err != nil {
		return d, err
	}
	return s.Subscription(ctx, id)
}

func (s *Service) StopSubscription(ctx context.Context, id string) (subscription.Descriptor, error) {
	known, err := s.Registry.Stop(ctx, id)
	if err != nil {
		return subscription.Descriptor{}, err
	}
	if !known {
		return subscription.Descriptor{}, notFound("subscription", id)
	}
	return s.Subscription(ctx, id)
}

// Stats is a summary of this node and the cluster state it sees.
type Stats struct {
	NodeID        string             `json:"nodeId"`
	Entities      map[string]int     `json:"entities"`
	Subscriptions map[string]int     `json:"subscriptions"`
	Healthy       int                `json:"healthySubscriptions"`
	Tasks         []scheduler.Status `json:"tasks"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		NodeID:   s.NodeID,
		Entities: make(map[string]int),
		Tasks:    []scheduler.Status{},
	}
	for _, c := range s.Repos.All() {
		n, err := c.Count(ctx)
		if err != nil {
			return stats, err
		}
		stats.Entities[c.Kind()] = n
	}
	dump, err := s.Registry.Dump(ctx)
	if err != nil {
		return stats, err
	}
	stats.Subscriptions = dump.States
	stats.Healthy = dump.Healthy
	if s.Tasks != nil {
		stats.Tasks = s.Tasks.Tasks()
	}
	return stats, nil
}

func (s *Service) Snapshot(ctx context.Context, kind, dataset string) (*model.ServiceDelivery, error) {
	d, err := s.Publisher.Snapshot(ctx, kind, dataset)
	if err != nil {
		if errors.Is(err, ingest.ErrUnknownKind) {
			return nil, &erraux.Error{Err: err, Code: http.StatusNotFound}
		}
		return nil, err
	}
	return d, nil
}
