// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package expiring provides maps whose entries carry an optional validity
// bound. Reads never return entries past their bound; a periodic sweep removes
// them physically.
package expiring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/zap"
)

const (
	defaultSweepPeriod  = 30 * time.Second
	defaultBackstop     = 5 * time.Minute
	maxUpdateAttempts   = 32
	defaultStoreLogName = "store"
)

var (
	ErrNilCoordinator = errors.New("coordinator cannot be nil")
	ErrEmptyName      = errors.New("store name cannot be empty")
	ErrContention     = errors.New("too many concurrent updates for key")
)

// Config is the "store" configuration section.
type Config struct {
	// DefaultExpiry applies to Put calls. Zero means entries never expire.
	DefaultExpiry time.Duration

	// SweepPeriod is the interval of the shared sweep. Zero selects the
	// default of 30 seconds; a negative value disables sweeping.
	SweepPeriod time.Duration

	// ClusterShared places entries in the cluster map instead of node memory.
	// Only one node sweeps shared stores.
	ClusterShared bool

	// Backstop is added to the backend time to live of expiring entries so the
	// backend only reaps what the sweep missed. (Optional). Defaults to 5 minutes.
	Backstop time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time `mapstructure:"-"`
}

// Entry is a stored value with its validity bound. A nil ValidUntil never expires.
type Entry[V any] struct {
	Value      V          `json:"v"`
	ValidUntil *time.Time `json:"u,omitempty"`
}

func (e Entry[V]) expired(now time.Time) bool {
	return e.ValidUntil != nil && e.ValidUntil.Before(now)
}

// Store is an expiring map of V keyed by K, kept in one coordinator map.
type Store[K ~string, V any] struct {
	name          string
	c             coordinator.C
	defaultExpiry time.Duration
	backstop      time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// New returns a store over the coordinator map called name.
func New[K ~string, V any](name string, c coordinator.C, config Config, logger *zap.Logger) (*Store[K, V], error) {
	if c == nil {
		return nil, ErrNilCoordinator
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Backstop <= 0 {
		config.Backstop = defaultBackstop
	}
	return &Store[K, V]{
		name:          name,
		c:             c,
		defaultExpiry: config.DefaultExpiry,
		backstop:      config.Backstop,
		now:           config.Clock,
		logger:        logger.With(zap.String(defaultStoreLogName, name)),
	}, nil
}

func (s *Store[K, V]) Name() string {
	return s.name
}

// Now returns the store's clock reading.
func (s *Store[K, V]) Now() time.Time {
	return s.now()
}

// Put stores value under key with the default expiry.
func (s *Store[K, V]) Put(ctx context.Context, key K, value V) error {
	var validUntil *time.Time
	if s.defaultExpiry > 0 {
		t := s.now().Add(s.defaultExpiry)
		validUntil = &t
	}
	return s.PutUntil(ctx, key, value, validUntil)
}

// PutUntil stores value under key until validUntil; nil never expires.
func (s *Store[K, V]) PutUntil(ctx context.Context, key K, value V, validUntil *time.Time) error {
	data, err := marshal(Entry[V]{Value: value, ValidUntil: validUntil})
	if err != nil {
		return err
	}
	return s.c.MapPut(ctx, s.name, string(key), data, s.ttl(validUntil))
}

// ttl is the backend time to live for an entry.
func (s *Store[K, V]) ttl(validUntil *time.Time) time.Duration {
	if validUntil == nil {
		return 0
	}
	ttl := validUntil.Sub(s.now()) + s.backstop
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

// Get returns the live value under key.
func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	e, found, err := s.GetEntry(ctx, key)
	return e.Value, found, err
}

// GetEntry returns the live entry under key.
func (s *Store[K, V]) GetEntry(ctx context.Context, key K) (Entry[V], bool, error) {
	data, found, err := s.c.MapGet(ctx, s.name, string(key))
	if err != nil || !found {
		return Entry[V]{}, false, err
	}
	e, err := s.decode(key, data)
	if err != nil || e.expired(s.now()) {
		return Entry[V]{}, false, nil
	}
	return e, true, nil
}

func (s *Store[K, V]) Remove(ctx context.Context, key K) error {
	return s.c.MapRemove(ctx, s.name, string(key))
}

// RemoveIf removes key when its current entry, live or not, satisfies match.
func (s *Store[K, V]) RemoveIf(ctx context.Context, key K, match func(Entry[V]) bool) (bool, error) {
	data, found, err := s.c.MapGet(ctx, s.name, string(key))
	if err != nil || !found {
		return false, err
	}
	e, err := s.decode(key, data)
	if err != nil || !match(e) {
		return false, nil
	}
	return s.c.MapRemoveIf(ctx, s.name, string(key), data)
}

// UpdateFunc receives the live entry under a key (nil when absent or expired)
// and returns the entry to store, or nil to leave the key untouched.
type UpdateFunc[V any] func(current *Entry[V]) *Entry[V]

// Update applies fn atomically with respect to other writers of key. fn may be
// called more than once. It reports whether a write happened.
func (s *Store[K, V]) Update(ctx context.Context, key K, fn UpdateFunc[V]) (bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		raw, found, err := s.c.MapGet(ctx, s.name, string(key))
		if err != nil {
			return false, err
		}
		var current *Entry[V]
		if found {
			if e, err := s.decode(key, raw); err == nil && !e.expired(s.now()) {
				current = &e
			}
		} else {
			raw = nil
		}

		next := fn(current)
		if next == nil {
			return false, nil
		}
		data, err := marshal(next)
		if err != nil {
			return false, err
		}
		ok, err := s.c.MapPutIf(ctx, s.name, string(key), data, raw, s.ttl(next.ValidUntil))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %s/%s", ErrContention, s.name, key)
}

// Entries returns every live entry.
func (s *Store[K, V]) Entries(ctx context.Context) (map[K]Entry[V], error) {
	raw, err := s.c.MapEntries(ctx, s.name)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entries := make(map[K]Entry[V], len(raw))
	for k, data := range raw {
		e, err := s.decode(K(k), data)
		if err != nil || e.expired(now) {
			continue
		}
		entries[K(k)] = e
	}
	return entries, nil
}

// Snapshot returns the live values keyed by key.
func (s *Store[K, V]) Snapshot(ctx context.Context) (map[K]V, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	values := make(map[K]V, len(entries))
	for k, e := range entries {
		values[k] = e.Value
	}
	return values, nil
}

// Keys returns the keys of every live entry.
func (s *Store[K, V]) Keys(ctx context.Context) ([]K, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]K, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of live entries.
func (s *Store[K, V]) Len(ctx context.Context) (int, error) {
	entries, err := s.Entries(ctx)
	return len(entries), err
}

// RemoveWhere removes every entry, live or not, for which match returns true.
// An entry rewritten after it was read is left alone.
func (s *Store[K, V]) RemoveWhere(ctx context.Context, match func(K, Entry[V]) bool) (int, error) {
	raw, err := s.c.MapEntries(ctx, s.name)
	if err != nil {
		return 0, err
	}
	removed := 0
	for k, data := range raw {
		e, err := s.decode(K(k), data)
		if err != nil {
			continue
		}
		if !match(K(k), e) {
			continue
		}
		ok, err := s.c.MapRemoveIf(ctx, s.name, k, data)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Sweep removes every entry whose validity ended before now and returns how
// many were removed. Entries written after the scan started keep their
// fresher value because removal compares the exact bytes that were scanned.
func (s *Store[K, V]) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	return s.RemoveWhere(ctx, func(_ K, e Entry[V]) bool {
		return e.expired(now)
	})
}

func (s *Store[K, V]) decode(key K, data []byte) (Entry[V], error) {
	var e Entry[V]
	if err := unmarshal(data, &e); err != nil {
		s.logger.Error("failed to decode entry", zap.String("key", string(key)), zap.Error(err))
		return Entry[V]{}, err
	}
	return e, nil
}
