// Copyright 2026 The Whatsgate Authors
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

// Package cache provides a small concurrency-safe TTL cache.
//
// Entries are stored in a sync.Map so reads and writes for different keys
// never contend on a shared lock. Expired entries are dropped lazily when
// they are read and by Prune.
package cache

import (
	"sync"
	"time"
)

// Option configures a TTL cache
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a key/value cache whose entries expire after a fixed duration.
type TTL[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	entries sync.Map
}

// New creates a cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{ttl: ttl, now: o.now}
}

// TTL returns the configured entry lifetime
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	var zero V
	raw, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}
	e := raw.(*entry[V])
	if !c.now().Before(e.expiresAt) {
		// Only drop the entry we observed; a concurrent Set must survive.
		c.entries.CompareAndDelete(key, e)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry and resetting its TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.entries.Store(key, &entry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.entries.Delete(key)
}

// DeleteFunc removes every entry for which fn returns true.
func (c *TTL[K, V]) DeleteFunc(fn func(K, V) bool) int {
	removed := 0
	c.entries.Range(func(k, raw any) bool {
		e := raw.(*entry[V])
		if fn(k.(K), e.value) {
			if c.entries.CompareAndDelete(k, e) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Prune drops expired entries and returns how many were removed.
func (c *TTL[K, V]) Prune() int {
	now := c.now()
	removed := 0
	c.entries.Range(func(k, raw any) bool {
		e := raw.(*entry[V])
		if !now.Before(e.expiresAt) && c.entries.CompareAndDelete(k, e) {
			removed++
		}
		return true
	})
	return removed
}

// Len counts live entries.
func (c *TTL[K, V]) Len() int {
	now := c.now()
	n := 0
	c.entries.Range(func(_, raw any) bool {
		if now.Before(raw.(*entry[V]).expiresAt) {
			n++
		}
		return true
	})
	return n
}

// Clear removes every entry.
func (c *TTL[K, V]) Clear() {
	c.entries.Clear()
}
