// Package lock provides cross-process advisory locks keyed by a namespace
// and a key. Ids are derived from a hash so every process agrees on them.
package lock

import (
	"context"
	"errors"
	"fmt"
)

var ErrAlreadyLocked = errors.New("lock is already held")

// Namespaces in use. Period maintenance (matching, invoicing, deletion)
// locks on the period id; scheduled jobs lock on the job name.
const (
	NamespacePeriod = "period"
	NamespaceJob    = "job"
)

// Locker acquires advisory locks without blocking. Contention is reported
// as ErrAlreadyLocked.
type Locker interface {
	TryLock(ctx context.Context, namespace, key string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Unlock(ctx context.Context) error
}

// WithLock runs fn while holding the (namespace, key) lock.
func WithLock(ctx context.Context, l Locker, namespace, key string, fn func(ctx context.Context) error) (err error) {
	lease, err := l.TryLock(ctx, namespace, key)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lease.Unlock(ctx); uerr != nil && err == nil {
			err = fmt.Errorf("unlock %s/%s: %w", namespace, key, uerr)
		}
	}()
	return fn(ctx)
}
