// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package entity keeps the live state of each tracked entity kind with
// version-aware upserts on top of an expiring store.
package entity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/expiring"
	"go.uber.org/zap"
)

// Outcome is the result of an upsert. None of them is an error.
type Outcome int

const (
	Added Outcome = iota
	Updated
	Unchanged
	ExpiredIgnored
	Invalid
)

var outcomeNames = [...]string{"added", "updated", "unchanged", "expired-ignored", "invalid"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	return []Outcome{Added, Updated, Unchanged, ExpiredIgnored, Invalid}
}

const mapPrefix = "entities/"

var (
	ErrEmptyDataset = errors.New("dataset id cannot be empty")
	ErrNilMeasures  = errors.New("measures cannot be nil")
)

// Record is what the repository stores per key.
type Record[V any] struct {
	Dataset string  `json:"dataset"`
	Version Version `json:"version"`
	Payload V       `json:"payload"`
}

// Collection is the kind-independent view of a repository.
type Collection interface {
	Kind() string
	Count(ctx context.Context) (int, error)
	ClearAllByDataset(ctx context.Context, datasetID string) (int, error)
	expiring.Sweepable
}

// Repository holds the live entities of one kind. Keys are namespaced by
// dataset so producers never overwrite each other.
type Repository[V any] struct {
	kind     Kind[V]
	store    *expiring.Store[string, Record[V]]
	measures *Measures
	logger   *zap.Logger
}

var _ Collection = (*Repository[any])(nil)

// NewRepository builds a repository whose entries live in the coordinator map
// "entities/<kind>".
func NewRepository[V any](kind Kind[V], c coordinator.C, config expiring.Config, measures *Measures, logger *zap.Logger) (*Repository[V], error) {
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := expiring.New[string, Record[V]](mapPrefix+kind.Name, c, config, logger)
	if err != nil {
		return nil, err
	}
	return &Repository[V]{
		kind:     kind,
		store:    store,
		measures: measures,
		logger:   logger.With(zap.String("kind", kind.Name)),
	}, nil
}

func (r *Repository[V]) Kind() string {
	return r.kind.Name
}

// Name is the backing store name.
func (r *Repository[V]) Name() string {
	return r.store.Name()
}

func entityKey(datasetID, key string) string {
	return strings.ToLower(datasetID) + keySeparator + key
}

// Upsert stores payload unless it has already expired, cannot be identified,
// or is not newer than the stored version of the same entity.
func (r *Repository[V]) Upsert(ctx context.Context, datasetID string, payload V) (Outcome, error) {
	if datasetID == "" {
		return Invalid, ErrEmptyDataset
	}
	key := r.kind.Key(payload)
	if key == "" {
		r.record(Invalid)
		r.logger.Debug("dropping payload without identity", zap.String("dataset", datasetID))
		return Invalid, nil
	}

	validUntil := r.kind.ValidUntil(payload, r.store.Now())
	if validUntil != nil && validUntil.Before(r.store.Now()) {
		r.record(ExpiredIgnored)
		return ExpiredIgnored, nil
	}

	version := r.kind.Version(payload)
	outcome := Unchanged
	_, err := r.store.Update(ctx, entityKey(datasetID, key), func(current *expiring.Entry[Record[V]]) *expiring.Entry[Record[V]] {
		// an unversioned payload cannot be ordered, so the latest one wins
		if current != nil && !version.IsZero() && version.Compare(current.Value.Version) <= 0 {
			outcome = Unchanged
			return nil
		}
		outcome = Added
		if current != nil {
			outcome = Updated
		}
		return &expiring.Entry[Record[V]]{
			Value: Record[V]{
				Dataset: strings.ToLower(datasetID),
				Version: version,
				Payload: payload,
			},
			ValidUntil: validUntil,
		}
	})
	if err != nil {
		return outcome, err
	}
	r.record(outcome)
	if outcome != Unchanged {
		r.logger.Debug("stored entity", zap.String("key", entityKey(datasetID, key)),
			zap.Stringer("outcome", outcome), zap.Stringer("version", version))
	}
	return outcome, nil
}

func (r *Repository[V]) record(o Outcome) {
	r.measures.Upserts.WithLabelValues(r.kind.Name, o.String()).Inc()
}

// Get returns the live entity with the given identity in a dataset.
func (r *Repository[V]) Get(ctx context.Context, datasetID, key string) (V, bool, error) {
	rec, found, err := r.store.Get(ctx, entityKey(datasetID, key))
	return rec.Payload, found, err
}

// GetAll returns every live entity ordered by key.
func (r *Repository[V]) GetAll(ctx context.Context) ([]V, error) {
	return r.getAll(ctx, func(Record[V]) bool { return true })
}

// GetAllByDataset returns the live entities of one dataset ordered by key.
func (r *Repository[V]) GetAllByDataset(ctx context.Context, datasetID string) ([]V, error) {
	datasetID = strings.ToLower(datasetID)
	return r.getAll(ctx, func(rec Record[V]) bool { return rec.Dataset == datasetID })
}

func (r *Repository[V]) getAll(ctx context.Context, match func(Record[V]) bool) ([]V, error) {
	entries, err := r.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for k, e := range entries {
		if match(e.Value) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([]V, 0, len(keys))
	for _, k := range keys {
		values = append(values, entries[k].Value.Payload)
	}
	return values, nil
}

// Count returns the number of live entities.
func (r *Repository[V]) Count(ctx context.Context) (int, error) {
	n, err := r.store.Len(ctx)
	if err == nil {
		r.measures.Live.WithLabelValues(r.kind.Name).Set(float64(n))
	}
	return n, err
}

// ClearAllByDataset removes every entity of the dataset, expired or not, from
// the repository's store. A node-local store clears only that node.
func (r *Repository[V]) ClearAllByDataset(ctx context.Context, datasetID string) (int, error) {
	datasetID = strings.ToLower(datasetID)
	removed, err := r.store.RemoveWhere(ctx, func(_ string, e expiring.Entry[Record[V]]) bool {
		return e.Value.Dataset == datasetID
	})
	if removed > 0 {
		r.logger.Info("cleared dataset", zap.String("dataset", datasetID), zap.Int("removed", removed))
	}
	return removed, err
}

// Sweep physically removes expired entities.
func (r *Repository[V]) Sweep(ctx context.Context) (int, error) {
	return r.store.Sweep(ctx)
}

// Now is the repository's clock reading.
func (r *Repository[V]) Now() time.Time {
	return r.store.Now()
}
