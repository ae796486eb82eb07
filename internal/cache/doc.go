// Package cache provides the key-value backends that hold serialized
// conversations.
//
// # Contract
//
// Every backend implements Backend:
//
//	Get(ctx, key) (value, found, err)
//	Set(ctx, key, value) error
//	Close() error
//
// A missing key is reported with found == false and a nil error. Set always
// overwrites; there is no compare-and-swap, so concurrent writers to the same
// key resolve as last-writer-wins.
//
// # Backends
//
//   - Memory: in-process TTL/LRU map, lost on exit
//   - SQLite: single table in a modernc.org/sqlite database
//   - Bolt: one bucket in a bbolt file
//   - Pebble: raw keys in a Pebble LSM directory
//
// Open selects a backend by name. Namespaced wraps any backend so that keys
// from different clients sharing one store do not collide.
package cache
