// ABOUTME: Backend interface for conversation caches and the namespace wrapper
// ABOUTME: Open picks a concrete backend (memory, sqlite, bolt, pebble) by name

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("cache closed")

// Backend is the minimal get/set contract the conversation store consumes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendPebble = "pebble"
)

// Options configures Open.
type Options struct {
	Backend    string
	Path       string
	TTL        time.Duration // memory only; zero means entries never expire
	MaxEntries int           // memory only
}

// Open creates the backend described by opts.
func Open(opts Options) (Backend, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(opts.TTL, opts.MaxEntries), nil
	case BackendSQLite:
		return NewSQLite(opts.Path)
	case BackendBolt:
		return NewBolt(opts.Path)
	case BackendPebble:
		return NewPebble(opts.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Namespaced prefixes every key with "<namespace>:" before delegating.
type Namespaced struct {
	namespace string
	backend   Backend
}

// WithNamespace wraps b. An empty namespace returns b unchanged.
func WithNamespace(b Backend, namespace string) Backend {
	if namespace == "" {
		return b
	}
	return &Namespaced{namespace: namespace, backend: b}
}

func (n *Namespaced) key(k string) string {
	return n.namespace + ":" + k
}

// Get reads the namespaced key.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.backend.Get(ctx, n.key(key))
}

// Set writes the namespaced key.
func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.backend.Set(ctx, n.key(key), value)
}

// Close closes the wrapped backend.
func (n *Namespaced) Close() error {
	return n.backend.Close()
}
