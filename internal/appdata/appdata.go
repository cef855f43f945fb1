// Package appdata holds the application-wide data exposed to every template
// as "app".
package appdata

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/conneroisu/payload/internal/storage"
)

// DefaultKey is the storage key app data persists under.
const DefaultKey = "payload.appData"

// Data is a mutex-guarded map.
type Data struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates Data seeded with a copy of initial.
func New(initial map[string]any) *Data {
	d := &Data{values: make(map[string]any, len(initial))}
	for k, v := range initial {
		d.values[k] = v
	}

	return d
}

// Get returns the value under key.
func (d *Data) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.values[key]
	return v, ok
}

// Set stores value under key.
func (d *Data) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.values[key] = value
}

// Delete removes key.
func (d *Data) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.values, key)
}

// Keys returns the keys in order.
func (d *Data) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy safe to hand to a template.
func (d *Data) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}

	return out
}

// Replace swaps the whole map.
func (d *Data) Replace(values map[string]any) {
	next := make(map[string]any, len(values))
	for k, v := range values {
		next[k] = v
	}

	d.mu.Lock()
	d.values = next
	d.mu.Unlock()
}

// Load merges the JSON object stored under key over the current values.
// A missing or unreadable document leaves the data unchanged and reports
// false.
func (d *Data) Load(ctx context.Context, store *storage.Scoped, key string) bool {
	raw, ok := store.Get(ctx, key)
	if !ok {
		return false
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false
	}

	d.mu.Lock()
	for k, v := range stored {
		d.values[k] = v
	}
	d.mu.Unlock()

	return true
}

// Save writes the current values as a JSON object under key.
func (d *Data) Save(ctx context.Context, store *storage.Scoped, key string) error {
	raw, err := json.Marshal(d.Snapshot())
	if err != nil {
		return err
	}
	store.Set(ctx, key, raw)

	return nil
}
