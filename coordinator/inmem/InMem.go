// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package inmem

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/xmidt-org/sirihub/coordinator"
)

type expireableItem struct {
	data       []byte
	expiration *time.Time
}

type InMem struct {
	data map[string]map[string]expireableItem
	lock sync.Mutex
	now  func() time.Time
}

var _ coordinator.Backend = (*InMem)(nil)

func NewInMem() *InMem {
	return &InMem{
		data: map[string]map[string]expireableItem{},
		now:  time.Now,
	}
}

// NewInMemWithClock lets tests drive expiry with a fake clock.
func NewInMemWithClock(now func() time.Time) *InMem {
	i := NewInMem()
	i.now = now
	return i
}

func (i *InMem) Push(_ context.Context, key coordinator.Key, item coordinator.Item) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.store(key, item)
	return nil
}

func (i *InMem) PushIf(_ context.Context, key coordinator.Key, item coordinator.Item, expected []byte) (bool, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	current, ok := i.lookup(key)
	switch {
	case expected == nil && ok:
		return false, nil
	case expected != nil && (!ok || !bytes.Equal(current.data, expected)):
		return false, nil
	}
	i.store(key, item)
	return true, nil
}

func (i *InMem) Get(_ context.Context, key coordinator.Key) (coordinator.Item, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	item, ok := i.lookup(key)
	if !ok {
		return coordinator.Item{}, coordinator.ErrItemNotFound
	}
	return i.toItem(item), nil
}

func (i *InMem) GetAll(_ context.Context, bucketName string) (map[string]coordinator.Item, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	bucket := i.data[bucketName]
	result := make(map[string]coordinator.Item, len(bucket))
	for id, item := range bucket {
		if i.hasExpired(item) {
			i.deleteItem(bucketName, id, bucket)
			continue
		}
		result[id] = i.toItem(item)
	}
	return result, nil
}

func (i *InMem) Delete(_ context.Context, key coordinator.Key) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if _, ok := i.lookup(key); !ok {
		return coordinator.ErrItemNotFound
	}
	i.deleteItem(key.Bucket, key.ID, i.data[key.Bucket])
	return nil
}

func (i *InMem) DeleteIf(_ context.Context, key coordinator.Key, expected []byte) (bool, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	current, ok := i.lookup(key)
	if !ok || !bytes.Equal(current.data, expected) {
		return false, nil
	}
	i.deleteItem(key.Bucket, key.ID, i.data[key.Bucket])
	return true, nil
}

func (i *InMem) store(key coordinator.Key, item coordinator.Item) {
	if i.data[key.Bucket] == nil {
		i.data[key.Bucket] = map[string]expireableItem{}
	}
	storingItem := expireableItem{data: append([]byte(nil), item.Data...)}
	if item.TTL > 0 {
		expiration := i.now().Add(item.TTL)
		storingItem.expiration = &expiration
	}
	i.data[key.Bucket][key.ID] = storingItem
}

// lookup returns the live item for key. Expired items are removed from the
// internal map as a side effect.
func (i *InMem) lookup(key coordinator.Key) (expireableItem, bool) {
	bucket, ok := i.data[key.Bucket]
	if !ok {
		return expireableItem{}, false
	}
	item, ok := bucket[key.ID]
	if !ok {
		return expireableItem{}, false
	}
	if i.hasExpired(item) {
		i.deleteItem(key.Bucket, key.ID, bucket)
		return expireableItem{}, false
	}
	return item, true
}

func (i *InMem) hasExpired(item expireableItem) bool {
	return item.expiration != nil && !i.now().Before(*item.expiration)
}

func (i *InMem) toItem(item expireableItem) coordinator.Item {
	out := coordinator.Item{Data: append([]byte(nil), item.data...)}
	if item.expiration != nil {
		out.TTL = item.expiration.Sub(i.now())
	}
	return out
}

func (i *InMem) deleteItem(bucketName string, itemID string, bucket map[string]expireableItem) {
	delete(bucket, itemID)
	if len(bucket) == 0 {
		delete(i.data, bucketName)
	}
}
