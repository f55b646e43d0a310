// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xmidt-org/sirihub/coordinator/metric"
	"go.uber.org/zap"
)

const (
	defaultLeaseTTL            = 30 * time.Second
	defaultAcquirePollInterval = 250 * time.Millisecond
	defaultMemberHeartbeat     = 10 * time.Second
)

var (
	ErrNilBackend   = errors.New("backend cannot be nil")
	ErrNilMeasures  = errors.New("measures cannot be nil")
	ErrEmptyNodeID  = errors.New("node id cannot be empty")
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
)

// Config contains the lease and membership settings of a coordinator.
type Config struct {
	// NodeID identifies this process in the cluster. Required.
	NodeID string

	// Address is advertised in the member record. Optional.
	Address string

	// LeaseTTL is how long a lease survives without renewal.
	// (Optional). Defaults to 30 seconds.
	LeaseTTL time.Duration

	// AcquirePollInterval is the pause between attempts inside TryAcquire.
	// (Optional). Defaults to 250 milliseconds.
	AcquirePollInterval time.Duration

	// MemberHeartbeat is how often this node refreshes its member record.
	// Member records expire after three missed heartbeats.
	// (Optional). Defaults to 10 seconds.
	MemberHeartbeat time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time `mapstructure:"-"`
}

// Coordinator implements C on top of any Backend.
type Coordinator struct {
	backend  Backend
	config   Config
	logger   *zap.Logger
	measures *metric.Measures
	now      func() time.Time

	startedAt time.Time
	started   atomic.Bool
	stopOnce  sync.Once
	shutdown  chan struct{}
	done      chan struct{}
}

var _ C = (*Coordinator)(nil)

func New(config Config, backend Backend, measures *metric.Measures, logger *zap.Logger) (*Coordinator, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if measures == nil {
		return nil, ErrNilMeasures
	}
	if config.NodeID == "" {
		return nil, ErrEmptyNodeID
	}
	validateConfig(&config)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		backend:  backend,
		config:   config,
		logger:   logger,
		measures: measures,
		now:      config.Clock,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func validateConfig(config *Config) {
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = defaultLeaseTTL
	}
	if config.AcquirePollInterval <= 0 {
		config.AcquirePollInterval = defaultAcquirePollInterval
	}
	if config.MemberHeartbeat <= 0 {
		config.MemberHeartbeat = defaultMemberHeartbeat
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
}

// NodeID returns the identity this coordinator advertises.
func (c *Coordinator) NodeID() string {
	return c.config.NodeID
}

// LeaseTTL returns the configured lease lifetime. Holders should renew well within it.
func (c *Coordinator) LeaseTTL() time.Duration {
	return c.config.LeaseTTL
}

func (c *Coordinator) observe(opType string, start time.Time, err error) {
	c.measures.BackendDuration.With(prometheus.Labels{TypeLabel: opType}).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		c.measures.BackendFailureCount.With(prometheus.Labels{TypeLabel: opType}).Inc()
		return
	}
	c.measures.BackendSuccessCount.With(prometheus.Labels{TypeLabel: opType}).Inc()
}

func (c *Coordinator) TryAcquire(ctx context.Context, lockKey, holderID string, timeout time.Duration) (bool, error) {
	if lockKey == "" {
		return false, ErrEmptyLockKey
	}
	deadline := c.now().Add(timeout)
	for {
		acquired, err := c.acquireOnce(ctx, lockKey, holderID)
		if err != nil {
			return false, err
		}
		if acquired {
			c.measures.LeaseAcquired.Inc()
			return true, nil
		}
		c.measures.LeaseContended.Inc()

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return false, nil
		}
		wait := c.config.AcquirePollInterval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Coordinator) acquireOnce(ctx context.Context, lockKey, holderID string) (acquired bool, err error) {
	start := time.Now()
	defer func() { c.observe(LeaseType, start, err) }()

	key := Key{Bucket: leaseBucket, ID: lockKey}
	now := c.now()
	lease := Lease{Holder: holderID, AcquiredAt: now, Expires: now.Add(c.config.LeaseTTL)}

	current, err := c.backend.Get(ctx, key)
	if errors.Is(err, ErrItemNotFound) {
		data, err := msgpack.Marshal(&lease)
		if err != nil {
			return false, err
		}
		acquired, err := c.backend.PushIf(ctx, key, Item{Data: data, TTL: c.config.LeaseTTL}, nil)
		return acquired, unavailable("acquire", err)
	}
	if err != nil {
		return false, unavailable("acquire", err)
	}

	var existing Lease
	if err := msgpack.Unmarshal(current.Data, &existing); err != nil {
		c.logger.Warn("overwriting undecodable lease record", zap.String("lockKey", lockKey), zap.Error(err))
	} else {
		if existing.Holder != holderID && now.Before(existing.Expires) {
			return false, nil
		}
		if existing.Holder == holderID {
			lease.AcquiredAt = existing.AcquiredAt
		}
	}

	data, err := msgpack.Marshal(&lease)
	if err != nil {
		return false, err
	}
	acquired, err = c.backend.PushIf(ctx, key, Item{Data: data, TTL: c.config.LeaseTTL}, current.Data)
	return acquired, unavailable("acquire", err)
}

func (c *Coordinator) Release(ctx context.Context, lockKey, holderID string) (err error) {
	start := time.Now()
	defer func() { c.observe(LeaseType, start, err) }()

	key := Key{Bucket: leaseBucket, ID: lockKey}
	current, err := c.backend.Get(ctx, key)
	if errors.Is(err, ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return unavailable("release", err)
	}
	var existing Lease
	if err := msgpack.Unmarshal(current.Data, &existing); err != nil || existing.Holder != holderID {
		return nil
	}
	_, err = c.backend.DeleteIf(ctx, key, current.Data)
	return unavailable("release", err)
}

func (c *Coordinator) ForceUnlock(ctx context.Context, lockKey string) (err error) {
	start := time.Now()
	defer func() { c.observe(LeaseType, start, err) }()

	err = c.backend.Delete(ctx, Key{Bucket: leaseBucket, ID: lockKey})
	if errors.Is(err, ErrItemNotFound) {
		return nil
	}
	if err == nil {
		c.logger.Info("lease force unlocked", zap.String("lockKey", lockKey))
	}
	return unavailable("force unlock", err)
}

func (c *Coordinator) Leases(ctx context.Context) ([]Lease, error) {
	start := time.Now()
	items, err := c.backend.GetAll(ctx, leaseBucket)
	c.observe(ReadType, start, err)
	if err != nil {
		return nil, unavailable("list leases", err)
	}
	now := c.now()
	leases := make([]Lease, 0, len(items))
	for k, item := range items {
		var l Lease
		if err := msgpack.Unmarshal(item.Data, &l); err != nil {
			c.logger.Error("failed to decode lease", zap.String("lockKey", k), zap.Error(err))
			continue
		}
		if !now.Before(l.Expires) {
			continue
		}
		l.Key = k
		leases = append(leases, l)
	}
	sort.Slice(leases, func(i, j int) bool { return leases[i].Key < leases[j].Key })
	return leases, nil
}

func (c *Coordinator) Members(ctx context.Context) ([]Member, error) {
	start := time.Now()
	items, err := c.backend.GetAll(ctx, memberBucket)
	c.observe(ReadType, start, err)
	if err != nil {
		return nil, unavailable("list members", err)
	}
	members := make([]Member, 0, len(items))
	for id, item := range items {
		var m Member
		if err := msgpack.Unmarshal(item.Data, &m); err != nil {
			c.logger.Error("failed to decode member", zap.String("nodeID", id), zap.Error(err))
			continue
		}
		m.ID = id
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	c.measures.ClusterMembers.Set(float64(len(members)))
	return members, nil
}

func (c *Coordinator) MapGet(ctx context.Context, mapName, key string) (data []byte, found bool, err error) {
	if err = checkMapName(mapName); err != nil {
		return nil, false, err
	}
	start := time.Now()
	item, err := c.backend.Get(ctx, Key{Bucket: mapName, ID: key})
	c.observe(ReadType, start, err)
	if errors.Is(err, ErrItemNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("map get", err)
	}
	return item.Data, true, nil
}

func (c *Coordinator) MapPut(ctx context.Context, mapName, key string, value []byte, ttl time.Duration) error {
	if err := checkMapName(mapName); err != nil {
		return err
	}
	start := time.Now()
	err := c.backend.Push(ctx, Key{Bucket: mapName, ID: key}, Item{Data: value, TTL: ttl})
	c.observe(InsertType, start, err)
	return unavailable("map put", err)
}

func (c *Coordinator) MapPutIf(ctx context.Context, mapName, key string, value, expected []byte, ttl time.Duration) (bool, error) {
	if err := checkMapName(mapName); err != nil {
		return false, err
	}
	start := time.Now()
	ok, err := c.backend.PushIf(ctx, Key{Bucket: mapName, ID: key}, Item{Data: value, TTL: ttl}, expected)
	c.observe(InsertType, start, err)
	return ok, unavailable("map put", err)
}

func (c *Coordinator) MapRemove(ctx context.Context, mapName, key string) error {
	if err := checkMapName(mapName); err != nil {
		return err
	}
	start := time.Now()
	err := c.backend.Delete(ctx, Key{Bucket: mapName, ID: key})
	c.observe(DeleteType, start, err)
	if errors.Is(err, ErrItemNotFound) {
		return nil
	}
	return unavailable("map remove", err)
}

func (c *Coordinator) MapRemoveIf(ctx context.Context, mapName, key string, expected []byte) (bool, error) {
	if err := checkMapName(mapName); err != nil {
		return false, err
	}
	start := time.Now()
	ok, err := c.backend.DeleteIf(ctx, Key{Bucket: mapName, ID: key}, expected)
	c.observe(DeleteType, start, err)
	return ok, unavailable("map remove", err)
}

func (c *Coordinator) MapEntries(ctx context.Context, mapName string) (map[string][]byte, error) {
	if err := checkMapName(mapName); err != nil {
		return nil, err
	}
	start := time.Now()
	items, err := c.backend.GetAll(ctx, mapName)
	c.observe(ReadType, start, err)
	if err != nil {
		return nil, unavailable("map entries", err)
	}
	entries := make(map[string][]byte, len(items))
	for k, item := range items {
		entries[k] = item.Data
	}
	return entries, nil
}

// Start begins refreshing this node's member record. It returns once the first
// heartbeat has been attempted.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	c.startedAt = c.now()
	c.heartbeat(ctx)

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.config.MemberHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-c.shutdown:
				return
			case <-ticker.C:
				c.heartbeat(context.Background())
			}
		}
	}()
	return nil
}

// Stop ends the heartbeat loop and removes this node's member record.
func (c *Coordinator) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.shutdown)
		if !c.started.Load() {
			return
		}
		<-c.done
		err = c.backend.Delete(ctx, Key{Bucket: memberBucket, ID: c.config.NodeID})
		if errors.Is(err, ErrItemNotFound) {
			err = nil
		}
	})
	return err
}

func (c *Coordinator) heartbeat(ctx context.Context) {
	m := Member{
		Address:   c.config.Address,
		StartedAt: c.startedAt,
		LastSeen:  c.now(),
	}
	data, err := msgpack.Marshal(&m)
	if err != nil {
		c.logger.Error("failed to encode member record", zap.Error(err))
		return
	}
	start := time.Now()
	err = c.backend.Push(ctx, Key{Bucket: memberBucket, ID: c.config.NodeID}, Item{Data: data, TTL: 3 * c.config.MemberHeartbeat})
	c.observe(InsertType, start, err)
	if err != nil {
		c.logger.Error("member heartbeat failed", zap.String("nodeID", c.config.NodeID), zap.Error(err))
	}
}
