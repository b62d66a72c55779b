// Package noncecache implements replay protection for signed messages
// carrying a nonce: a small (signer, nonce) cache that rejects a pair it
// has already seen, even when the message's timestamp is inside the
// verification window (see SPEC_FULL.md §6.10).
package noncecache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Store is the interface both the in-memory and Redis-backed caches
// satisfy. SeenAndRecord atomically checks-and-marks a (signer, nonce)
// pair: it returns true if the pair was already present.
type Store interface {
	SeenAndRecord(ctx context.Context, signer string, nonce uint64) (alreadySeen bool, err error)
}

func key(signer string, nonce uint64) string {
	return fmt.Sprintf("%s:%d", signer, nonce)
}

// LRU is an in-memory, fixed-capacity replay cache. The executor uses it
// when no Redis address is configured, and tests use it; RedisStore is the
// store whose history survives a restart.
type LRU struct {
	mu       sync.Mutex
	capacity int
	index    map[string]*list.Element
	order    *list.List // front = most recently seen
}

// NewLRU creates an LRU cache holding up to capacity (signer, nonce) pairs.
func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LRU{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// SeenAndRecord never errors for the in-memory store.
func (c *LRU) SeenAndRecord(_ context.Context, signer string, nonce uint64) (bool, error) {
	k := key(signer, nonce)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[k]; ok {
		c.order.MoveToFront(el)
		return true, nil
	}

	el := c.order.PushFront(k)
	c.index[k] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(string))
	}

	return false, nil
}

// Len reports the number of entries currently cached.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
