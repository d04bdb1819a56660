// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
)

// PartitionCache provides an LRU cache keyed by topic/partition storing the
// bytes of a partition's data file.
type PartitionCache struct {
	mu       sync.Mutex
	capacity int
	size     int
	ll       *list.List
	items    map[string]*list.Element

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	key  string
	data []byte
}

// NewPartitionCache creates a cache with capacity in bytes.
func NewPartitionCache(capacityBytes int) *PartitionCache {
	if capacityBytes <= 0 {
		capacityBytes = 1
	}
	return &PartitionCache{
		capacity: capacityBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func makeKey(topic string, partition int32) string {
	return fmt.Sprintf("%s:%d", topic, partition)
}

// Get returns cached data if present. Callers must not modify the slice.
func (c *PartitionCache) Get(topic string, partition int32) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[makeKey(topic, partition)]; ok {
		c.ll.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*cacheEntry).data, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set adds or replaces a cache entry. Data larger than the whole cache is not stored.
func (c *PartitionCache) Set(topic string, partition int32, data []byte) {
	if len(data) > c.capacity {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := makeKey(topic, partition)
	copyData := append([]byte(nil), data...)
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		c.size -= len(entry.data)
		entry.data = copyData
		c.size += len(copyData)
		c.ll.MoveToFront(elem)
		c.evictIfNeeded()
		return
	}
	elem := c.ll.PushFront(&cacheEntry{key: key, data: copyData})
	c.items[key] = elem
	c.size += len(copyData)
	c.evictIfNeeded()
}

// Size reports the number of cached bytes.
func (c *PartitionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Hits reports how many lookups were served from the cache.
func (c *PartitionCache) Hits() uint64 { return c.hits.Load() }

// Misses reports how many lookups found nothing.
func (c *PartitionCache) Misses() uint64 { return c.misses.Load() }

func (c *PartitionCache) evictIfNeeded() {
	for c.size > c.capacity && c.ll.Len() > 0 {
		elem := c.ll.Back()
		entry := elem.Value.(*cacheEntry)
		delete(c.items, entry.key)
		c.ll.Remove(elem)
		c.size -= len(entry.data)
	}
}
