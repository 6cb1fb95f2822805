// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"sync"
	"time"
)

// Cache holds the last known usage snapshot per account for a short TTL.
// None of the hoff commands consult it, and the swap loop never does
// either — it always re-queries before selecting.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	entries map[string]cacheEntry
}

type cacheEntry struct {
	snapshot Snapshot
	at       time.Time
}

// NewCache returns a Cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached snapshot for account, if present and unexpired.
func (c *Cache) Get(account string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[account]
	if !ok {
		return Snapshot{}, false
	}
	if c.now().Sub(entry.at) > c.ttl {
		delete(c.entries, account)
		return Snapshot{}, false
	}
	return entry.snapshot, true
}

// Set records a freshly fetched snapshot for account.
func (c *Cache) Set(account string, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[account] = cacheEntry{snapshot: snapshot, at: c.now()}
}

// ClearExpired drops every entry older than the TTL.
func (c *Cache) ClearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for name, entry := range c.entries {
		if now.Sub(entry.at) > c.ttl {
			delete(c.entries, name)
		}
	}
}
