// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package coordtest holds helpers for testing code that runs on a coordinator.
package coordtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/inmem"
	"github.com/xmidt-org/sirihub/coordinator/metric"
)

// Epoch is where every Clock starts.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Cluster is a set of coordinators sharing one in-memory backend and clock.
type Cluster struct {
	Clock   *Clock
	Backend *inmem.InMem
	Nodes   []*coordinator.Coordinator
}

// NewCluster builds n nodes named node-0 ... node-(n-1) with a 10 second lease.
func NewCluster(t testing.TB, n int) *Cluster {
	clock := NewClock()
	cl := &Cluster{
		Clock:   clock,
		Backend: inmem.NewInMemWithClock(clock.Now),
	}
	for i := 0; i < n; i++ {
		cl.Nodes = append(cl.Nodes, cl.node(t, i))
	}
	return cl
}

func (cl *Cluster) node(t testing.TB, i int) *coordinator.Coordinator {
	c, err := coordinator.New(coordinator.Config{
		NodeID:              fmt.Sprintf("node-%d", i),
		LeaseTTL:            10 * time.Second,
		AcquirePollInterval: time.Millisecond,
		Clock:               cl.Clock.Now,
	}, cl.Backend, metric.NewTestMeasures(), nil)
	require.NoError(t, err)
	return c
}

// Node returns a single coordinator on its own backend.
func Node(t testing.TB) (*coordinator.Coordinator, *Clock) {
	cl := NewCluster(t, 1)
	return cl.Nodes[0], cl.Clock
}

// BackendTest exercises the Backend contract. advance moves the backend's
// notion of time forward; pass nil for backends without a controllable clock.
func BackendTest(t *testing.T, b coordinator.Backend, advance func(time.Duration)) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	key := coordinator.Key{Bucket: "world", ID: "earth"}

	t.Log("Basic Test")
	require.NoError(b.Push(ctx, key, coordinator.Item{Data: []byte("blue")}))
	item, err := b.Get(ctx, key)
	require.NoError(err)
	assert.Equal([]byte("blue"), item.Data)

	items, err := b.GetAll(ctx, "world")
	require.NoError(err)
	require.Len(items, 1)
	assert.Equal([]byte("blue"), items["earth"].Data)

	t.Log("Conditional Test")
	ok, err := b.PushIf(ctx, key, coordinator.Item{Data: []byte("green")}, nil)
	require.NoError(err)
	assert.False(ok, "key is present")
	ok, err = b.PushIf(ctx, key, coordinator.Item{Data: []byte("green")}, []byte("red"))
	require.NoError(err)
	assert.False(ok, "stale expectation")
	ok, err = b.PushIf(ctx, key, coordinator.Item{Data: []byte("green")}, []byte("blue"))
	require.NoError(err)
	assert.True(ok)
	ok, err = b.DeleteIf(ctx, key, []byte("blue"))
	require.NoError(err)
	assert.False(ok)
	ok, err = b.DeleteIf(ctx, key, []byte("green"))
	require.NoError(err)
	assert.True(ok)

	_, err = b.Get(ctx, key)
	assert.ErrorIs(err, coordinator.ErrItemNotFound)
	assert.ErrorIs(b.Delete(ctx, key), coordinator.ErrItemNotFound)

	if advance == nil {
		return
	}

	t.Log("Expire Test")
	require.NoError(b.Push(ctx, key, coordinator.Item{Data: []byte("blue"), TTL: time.Second}))
	advance(2 * time.Second)
	_, err = b.Get(ctx, key)
	assert.ErrorIs(err, coordinator.ErrItemNotFound)
	items, err = b.GetAll(ctx, "world")
	require.NoError(err)
	assert.Empty(items)

	ok, err = b.PushIf(ctx, key, coordinator.Item{Data: []byte("green")}, nil)
	require.NoError(err)
	assert.True(ok, "expired key counts as absent")
}
