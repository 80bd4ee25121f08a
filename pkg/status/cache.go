package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

var emptyObject = []byte(`{}`)

// Entry is one key/value pair of a snapshot.
type Entry struct {
	Key   Key
	Value json.RawMessage
}

// Cache holds the latest JSON document for each subsystem.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]json.RawMessage
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[Key]json.RawMessage),
	}
}

// Merge applies patch to the document stored under key, creating it from
// an empty object if absent. A patch that resolves to null removes the
// entry. On error the stored document is unchanged.
func (c *Cache) Merge(key Key, patch []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.entries[key]
	if !ok {
		doc = emptyObject
	}

	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return fmt.Errorf("status: merge %s: %w", key, err)
	}

	if bytes.Equal(bytes.TrimSpace(merged), []byte("null")) {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = merged
	return nil
}

// Get returns a copy of the document stored under key.
func (c *Cache) Get(key Key) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(doc), true
}

// Snapshot returns a point-in-time copy of every entry ordered by key.
// Later merges do not affect the returned values.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for key, doc := range c.entries {
		out = append(out, Entry{Key: key, Value: bytes.Clone(doc)})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Less(out[j].Key)
	})
	return out
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]json.RawMessage)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
