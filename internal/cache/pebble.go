// ABOUTME: Pebble cache backend storing conversations as raw keys in an LSM directory
// ABOUTME: Keys are prefixed with "conv:" so the directory can be shared with other data

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

const pebbleKeyPrefix = "conv:"

// Pebble implements Backend on top of a Pebble database directory.
type Pebble struct {
	db *pebble.DB
}

// NewPebble opens (or creates) a Pebble cache in the directory at path.
func NewPebble(path string) (*Pebble, error) {
	if path == "" {
		return nil, fmt.Errorf("pebble cache requires a path")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble database: %w", err)
	}
	return &Pebble{db: db}, nil
}

// Get reads the value stored under key. The returned slice is a copy.
func (p *Pebble) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, closer, err := p.db.Get([]byte(pebbleKeyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	defer closer.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set writes value under key and syncs it to disk.
func (p *Pebble) Set(_ context.Context, key string, value []byte) error {
	if err := p.db.Set([]byte(pebbleKeyPrefix+key), value, pebble.Sync); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close closes the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}
