package lock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var ErrCollision = errors.New("lock id collision")

// Registry maps (namespace, key) pairs to advisory lock ids. One registry
// is created at process start and injected into the lockers.
type Registry struct {
	mu     sync.Mutex
	strict bool
	seen   map[int64]string
	hash   func(namespace, key string) int64
}

// NewRegistry returns a registry. In strict mode two different names
// hashing to the same id fail with ErrCollision; otherwise the id is handed
// out regardless.
func NewRegistry(strict bool) *Registry {
	return &Registry{strict: strict, seen: make(map[int64]string), hash: ID}
}

// ID is a pure function of namespace and key.
func ID(namespace, key string) int64 {
	return int64(xxhash.Sum64String(namespace + "\x00" + key))
}

func (r *Registry) ID(namespace, key string) (int64, error) {
	id := r.hash(namespace, key)
	if !r.strict {
		return id, nil
	}

	name := namespace + "/" + key
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.seen[id]; ok && prev != name {
		return 0, fmt.Errorf("%w: %s and %s share id %d", ErrCollision, prev, name, id)
	}
	r.seen[id] = name
	return id, nil
}
