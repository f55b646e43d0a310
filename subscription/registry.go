// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package subscription keeps the configured upstream feeds and their
// lifecycle: pending until the producer accepts, active while data arrives,
// dead once data stops or the feed is stopped.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/expiring"
	"go.uber.org/zap"
)

const (
	descriptorMap = "subscriptions"
	identityMap   = "subscription-identities"

	subscriptionIDLogField = "subscriptionId"
)

var (
	ErrInvalidDescriptor = errors.New("invalid subscription descriptor")
	ErrNilMeasures       = errors.New("measures cannot be nil")
)

// Config is the "health" configuration section.
type Config struct {
	// CheckInterval is how often the health monitor runs.
	// (Optional). Defaults to 30 seconds.
	CheckInterval time.Duration

	// Grace extends the heartbeat interval per feed kind. Keys are feed kind
	// names or their abbreviations.
	Grace map[string]time.Duration

	// RestartDead re-registers feeds the monitor declares dead.
	RestartDead bool

	// Clock overrides time.Now.
	Clock func() time.Time `mapstructure:"-"`
}

// Registry holds every subscription descriptor. Transitions for one id are
// serialized through compare-and-swap on the descriptor map.
type Registry struct {
	descriptors *expiring.Store[string, Descriptor]
	identities  *expiring.Store[string, string]
	validate    *validator.Validate
	grace       map[FeedKind]time.Duration
	measures    *Measures
	logger      *zap.Logger
}

func NewRegistry(c coordinator.C, config Config, measures *Measures, logger *zap.Logger) (*Registry, error) {
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := make(map[FeedKind]time.Duration, len(config.Grace))
	for name, d := range config.Grace {
		kind, err := ParseFeedKind(name)
		if err != nil {
			return nil, fmt.Errorf("health grace: %w", err)
		}
		grace[kind] = d
	}

	storeConfig := expiring.Config{Clock: config.Clock}
	descriptors, err := expiring.New[string, Descriptor](descriptorMap, c, storeConfig, logger)
	if err != nil {
		return nil, err
	}
	identities, err := expiring.New[string, string](identityMap, c, storeConfig, logger)
	if err != nil {
		return nil, err
	}
	return &Registry{
		descriptors: descriptors,
		identities:  identities,
		validate:    validator.New(),
		grace:       grace,
		measures:    measures,
		logger:      logger,
	}, nil
}

func (r *Registry) now() time.Time {
	return r.descriptors.Now()
}

func identityKey(i Identity) string {
	return strings.ToLower(i.VendorID + "|" + i.DatasetID + "|" + i.FeedKind.String())
}

// Register adds d as a pending subscription and returns its id. A descriptor
// with the identity of a registered one refreshes that entry in place and
// keeps its id; an unchanged descriptor leaves it untouched. A dead
// subscription with the same identity is replaced under a new id. When d
// carries the id of a subscription whose identity differs, the old one is
// removed and d gets a new id. Fetching feeds become active immediately.
func (r *Registry) Register(ctx context.Context, d Descriptor) (string, error) {
	if err := r.validate.Struct(d); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	if d.ID != "" {
		old, found, err := r.descriptors.Get(ctx, d.ID)
		if err != nil {
			return "", err
		}
		if found && old.Identity() != d.Identity() {
			if _, err := r.Remove(ctx, d.ID); err != nil {
				return "", err
			}
		}
	}

	if err := r.removeDead(ctx, d.Identity()); err != nil {
		return "", err
	}

	candidate := uuid.NewString()
	id := candidate
	_, err := r.identities.Update(ctx, identityKey(d.Identity()), func(current *expiring.Entry[string]) *expiring.Entry[string] {
		if current != nil {
			id = current.Value
			return nil
		}
		id = candidate
		return &expiring.Entry[string]{Value: candidate}
	})
	if err != nil {
		return "", err
	}

	changed := false
	_, err = r.descriptors.Update(ctx, id, func(current *expiring.Entry[Descriptor]) *expiring.Entry[Descriptor] {
		if current != nil && current.Value.Equivalent(d) {
			changed = false
			return nil
		}
		changed = true
		var next Descriptor
		if current != nil {
			next = current.Value
		}
		next = next.withConfig(d)
		next.ID = id
		r.reset(&next)
		return &expiring.Entry[Descriptor]{Value: next}
	})
	if err != nil {
		return "", err
	}
	if changed {
		r.logger.Info("registered subscription", zap.String(subscriptionIDLogField, id),
			zap.Stringer("feedKind", d.FeedKind), zap.Stringer("mode", d.Mode), zap.String("dataset", d.DatasetID))
	}
	return id, nil
}

// removeDead drops the subscription registered under i when it is dead, so
// the identity can be registered again.
func (r *Registry) removeDead(ctx context.Context, i Identity) error {
	id, found, err := r.identities.Get(ctx, identityKey(i))
	if err != nil || !found {
		return err
	}
	current, found, err := r.descriptors.Get(ctx, id)
	if err != nil || !found || current.State != Dead {
		return err
	}
	r.logger.Info("replacing dead subscription", zap.String(subscriptionIDLogField, id))
	_, err = r.Remove(ctx, id)
	return err
}

// reset puts d back at the start of its lifecycle.
func (r *Registry) reset(d *Descriptor) {
	now := r.now()
	d.State = Pending
	d.PendingSince = &now
	d.ActivatedAt = nil
	d.LastDataReceivedAt = nil
	d.StoppedAt = nil
	if d.Mode.Fetches() {
		d.State = Active
		d.ActivatedAt = &now
		d.LastDataReceivedAt = &now
	}
}

// transition applies fn to the descriptor under id. fn reports whether it
// changed the descriptor. Unknown ids are logged and reported as not found.
func (r *Registry) transition(ctx context.Context, id, op string, fn func(d *Descriptor) bool) (bool, error) {
	found := false
	_, err := r.descriptors.Update(ctx, id, func(current *expiring.Entry[Descriptor]) *expiring.Entry[Descriptor] {
		if current == nil {
			found = false
			return nil
		}
		found = true
		next := current.Value
		if !fn(&next) {
			return nil
		}
		return &expiring.Entry[Descriptor]{Value: next}
	})
	if err != nil {
		return false, err
	}
	if !found {
		r.logger.Warn("ignoring "+op+" for unknown subscription", zap.String(subscriptionIDLogField, id))
	}
	return found, nil
}

// Activate moves a pending subscription to active. It reports whether the id
// is known.
func (r *Registry) Activate(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, "activate", func(d *Descriptor) bool {
		switch d.State {
		case Pending:
			now := r.now()
			d.State = Active
			d.ActivatedAt = &now
			d.LastDataReceivedAt = &now
			r.logger.Info("subscription activated", zap.String(subscriptionIDLogField, id))
			return true
		case Dead:
			r.logger.Warn("dead subscription cannot be activated", zap.String(subscriptionIDLogField, id))
		}
		return false
	})
}

// Touch records that data or a heartbeat arrived. It reports whether the id
// is known.
func (r *Registry) Touch(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, "touch", func(d *Descriptor) bool {
		now := r.now()
		d.LastDataReceivedAt = &now
		return true
	})
}

// Stop marks the subscription dead. It reports whether the id is known.
func (r *Registry) Stop(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, "stop", func(d *Descriptor) bool {
		if d.State == Dead {
			return false
		}
		now := r.now()
		d.State = Dead
		d.StoppedAt = &now
		r.logger.Info("subscription stopped", zap.String(subscriptionIDLogField, id))
		return true
	})
}

// Remove deletes the subscription in any state and reports whether it existed.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	d, found, err := r.descriptors.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		r.logger.Warn("ignoring remove for unknown subscription", zap.String(subscriptionIDLogField, id))
		return false, nil
	}
	if err := r.descriptors.Remove(ctx, id); err != nil {
		return false, err
	}
	_, err = r.identities.RemoveIf(ctx, identityKey(d.Identity()), func(e expiring.Entry[string]) bool {
		return e.Value == id
	})
	if err != nil {
		return false, err
	}
	r.logger.Info("subscription removed", zap.String(subscriptionIDLogField, id))
	return true, nil
}

// Restart removes a subscription and registers its configuration again
// under a new id, starting over as pending. It returns the new id and
// whether the old one was known.
func (r *Registry) Restart(ctx context.Context, id string) (string, bool, error) {
	d, found, err := r.descriptors.Get(ctx, id)
	if err != nil || !found {
		return "", found, err
	}
	if _, err := r.Remove(ctx, id); err != nil {
		return "", true, err
	}
	d.ID = ""
	next, err := r.Register(ctx, d)
	return next, true, err
}

// IsHealthy reports whether the subscription exists, is active and received
// data within its heartbeat interval plus the grace of its kind. A zero
// heartbeat interval never goes stale.
func (r *Registry) IsHealthy(ctx context.Context, id string) (bool, error) {
	d, found, err := r.descriptors.Get(ctx, id)
	if err != nil || !found {
		return false, err
	}
	return r.healthy(d, r.now()), nil
}

func (r *Registry) healthy(d Descriptor, now time.Time) bool {
	if d.State != Active {
		return false
	}
	if d.HeartbeatInterval <= 0 {
		return true
	}
	if d.LastDataReceivedAt == nil {
		return false
	}
	return now.Sub(*d.LastDataReceivedAt) <= d.HeartbeatInterval+r.grace[d.FeedKind]
}

func (r *Registry) Get(ctx context.Context, id string) (Descriptor, bool, error) {
	return r.descriptors.Get(ctx, id)
}

// List returns every subscription ordered by dataset, kind and id.
func (r *Registry) List(ctx context.Context) ([]Descriptor, error) {
	all, err := r.descriptors.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]Descriptor, 0, len(all))
	for _, d := range all {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.DatasetID != b.DatasetID {
			return a.DatasetID < b.DatasetID
		}
		if a.FeedKind != b.FeedKind {
			return a.FeedKind < b.FeedKind
		}
		return a.ID < b.ID
	})
	return list, nil
}

// Dump is a diagnostic view of the registry.
type Dump struct {
	Total         int            `json:"total"`
	States        map[string]int `json:"states"`
	Healthy       int            `json:"healthy"`
	Subscriptions []Descriptor   `json:"subscriptions"`
}

// Dump lists every subscription with counts per state and refreshes the state gauge.
func (r *Registry) Dump(ctx context.Context) (Dump, error) {
	list, err := r.List(ctx)
	if err != nil {
		return Dump{}, err
	}
	now := r.now()
	dump := Dump{
		Total:         len(list),
		States:        make(map[string]int, len(States())),
		Subscriptions: list,
	}
	for _, s := range States() {
		dump.States[s.String()] = 0
	}
	for _, d := range list {
		dump.States[d.State.String()]++
		if r.healthy(d, now) {
			dump.Healthy++
		}
	}
	for state, n := range dump.States {
		r.measures.States.WithLabelValues(state).Set(float64(n))
	}
	return dump, nil
}
