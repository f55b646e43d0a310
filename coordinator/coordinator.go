// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// TypeLabel is for labeling metrics; if there is a single metric for
	// successful backend operations, the typeLabel and corresponding type can be used
	// when incrementing the metric.
	TypeLabel  = "type"
	InsertType = "insert"
	DeleteType = "delete"
	ReadType   = "read"
	LeaseType  = "lease"
	PingType   = "ping"
)

// Reserved buckets. Map names supplied by callers must not collide with these.
const (
	leaseBucket  = "__leases"
	memberBucket = "__members"
)

var (
	// ErrItemNotFound is returned by backends when a key is absent or has expired.
	ErrItemNotFound = errors.New("item not found")

	// ErrUnavailable wraps every transient backend failure. Lock operations
	// that return it must be treated as "not leader".
	ErrUnavailable = errors.New("cluster coordination unavailable")

	ErrReservedMapName = errors.New("map name is reserved")
)

// Key defines the field mapping to retrieve an item from a backend.
type Key struct {
	// Bucket is a collection of items. Each cluster map is one bucket.
	Bucket string

	// ID is the unique ID for an item in a bucket.
	ID string
}

// Item is the opaque value stored under a key.
type Item struct {
	Data []byte

	// TTL is the time to live in the backend. Zero means the item never expires.
	// On reads it holds the remaining time to live.
	TTL time.Duration
}

// Backend is the storage substrate the coordinator runs on. Implementations must
// hide expired items from every read and must make the conditional operations
// atomic with respect to each other.
type Backend interface {
	Push(ctx context.Context, key Key, item Item) error

	// PushIf stores item only if the current value equals expected. A nil expected
	// value means the key must be absent (or expired). It reports whether the
	// write happened; a failed condition is not an error.
	PushIf(ctx context.Context, key Key, item Item, expected []byte) (bool, error)

	Get(ctx context.Context, key Key) (Item, error)
	Delete(ctx context.Context, key Key) error

	// DeleteIf removes the key only if its current value equals expected.
	DeleteIf(ctx context.Context, key Key, expected []byte) (bool, error)

	GetAll(ctx context.Context, bucket string) (map[string]Item, error)
}

// Lease is a cluster-wide mutual exclusion grant.
type Lease struct {
	Key        string    `json:"key" msgpack:"-"`
	Holder     string    `json:"holder" msgpack:"holder"`
	AcquiredAt time.Time `json:"acquiredAt" msgpack:"acquiredAt"`
	Expires    time.Time `json:"expires" msgpack:"expires"`
}

// Member describes a live node of the cluster. Diagnostics only.
type Member struct {
	ID        string    `json:"id" msgpack:"-"`
	Address   string    `json:"address,omitempty" msgpack:"address"`
	StartedAt time.Time `json:"startedAt" msgpack:"startedAt"`
	LastSeen  time.Time `json:"lastSeen" msgpack:"lastSeen"`
}

// C is the cluster coordinator: leases keyed by arbitrary strings plus a
// cluster-wide key/value map with TTL support.
type C interface {
	// TryAcquire blocks up to timeout attempting to take the lease for lockKey.
	// Acquiring a lease already held by holderID extends it.
	TryAcquire(ctx context.Context, lockKey, holderID string, timeout time.Duration) (bool, error)

	// Release gives up the lease. Releasing a lease held by someone else is a no-op.
	Release(ctx context.Context, lockKey, holderID string) error

	// ForceUnlock drops the lease regardless of its holder.
	ForceUnlock(ctx context.Context, lockKey string) error

	Leases(ctx context.Context) ([]Lease, error)
	Members(ctx context.Context) ([]Member, error)

	MapGet(ctx context.Context, mapName, key string) ([]byte, bool, error)
	MapPut(ctx context.Context, mapName, key string, value []byte, ttl time.Duration) error
	MapPutIf(ctx context.Context, mapName, key string, value, expected []byte, ttl time.Duration) (bool, error)
	MapRemove(ctx context.Context, mapName, key string) error
	MapRemoveIf(ctx context.Context, mapName, key string, expected []byte) (bool, error)
	MapEntries(ctx context.Context, mapName string) (map[string][]byte, error)
}

// unavailable marks err as a transient coordination failure.
func unavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func checkMapName(mapName string) error {
	if mapName == leaseBucket || mapName == memberBucket {
		return fmt.Errorf("%w: %s", ErrReservedMapName, mapName)
	}
	return nil
}
