// Package cache holds the latest known messages per destination.
package cache

import (
	"sync"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// Cache maps a destination key ("queue:orders") to its message list. All
// operations run under one mutex guarding the whole mapping.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]message.Message
	order   []string
}

func New() *Cache {
	return &Cache{entries: make(map[string][]message.Message)}
}

// Tx exposes the cache inside a critical section started by Update. A Tx
// must not be retained after the callback returns.
type Tx struct {
	c *Cache
}

// Update runs fn with the cache locked. Use it for read-then-write
// sequences that must not interleave with other writers.
func (c *Cache) Update(fn func(tx *Tx)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&Tx{c: c})
}

func (c *Cache) Get(key string) []message.Message {
	var out []message.Message
	c.Update(func(tx *Tx) { out = tx.Get(key) })
	return out
}

func (c *Cache) Replace(key string, msgs []message.Message) {
	c.Update(func(tx *Tx) { tx.Replace(key, msgs) })
}

func (c *Cache) Append(key string, msg message.Message) {
	c.Update(func(tx *Tx) { tx.Append(key, msg) })
}

func (c *Cache) Clear() {
	c.Update(func(tx *Tx) { tx.Clear() })
}

// SnapshotAll returns every cached message flattened across entries.
func (c *Cache) SnapshotAll() []message.Message {
	var out []message.Message
	c.Update(func(tx *Tx) { out = tx.SnapshotAll() })
	return out
}

// Len returns the number of messages across all entries.
func (c *Cache) Len() int {
	var n int
	c.Update(func(tx *Tx) {
		for _, msgs := range c.entries {
			n += len(msgs)
		}
	})
	return n
}

func (tx *Tx) Get(key string) []message.Message {
	msgs := tx.c.entries[key]
	if len(msgs) == 0 {
		return nil
	}
	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Replace swaps the entry wholesale. The slice is copied.
func (tx *Tx) Replace(key string, msgs []message.Message) {
	stored := make([]message.Message, len(msgs))
	copy(stored, msgs)
	if _, ok := tx.c.entries[key]; !ok {
		tx.c.order = append(tx.c.order, key)
	}
	tx.c.entries[key] = stored
}

// Append adds msg to the end of the entry. Duplicate ids are kept.
func (tx *Tx) Append(key string, msg message.Message) {
	if _, ok := tx.c.entries[key]; !ok {
		tx.c.order = append(tx.c.order, key)
	}
	tx.c.entries[key] = append(tx.c.entries[key], msg)
}

func (tx *Tx) Clear() {
	tx.c.entries = make(map[string][]message.Message)
	tx.c.order = nil
}

// SnapshotAll flattens all entries, in the order keys were first written.
func (tx *Tx) SnapshotAll() []message.Message {
	n := 0
	for _, msgs := range tx.c.entries {
		n += len(msgs)
	}
	out := make([]message.Message, 0, n)
	for _, key := range tx.c.order {
		out = append(out, tx.c.entries[key]...)
	}
	return out
}
