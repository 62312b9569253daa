package lock

import (
	"context"
	"fmt"
	"strconv"

	"github.com/uptrace/bun"

	"ms-activity/internal/logger"
)

// PostgresLocker takes session level advisory locks. Each lease pins its own
// connection since the lock belongs to the session that took it.
type PostgresLocker struct {
	DB       *bun.DB
	Registry *Registry
	Logger   *logger.Logger
}

func NewPostgresLocker(db *bun.DB, registry *Registry, log *logger.Logger) *PostgresLocker {
	return &PostgresLocker{DB: db, Registry: registry, Logger: log}
}

func (l *PostgresLocker) TryLock(ctx context.Context, namespace, key string) (Lease, error) {
	id, err := l.Registry.ID(namespace, key)
	if err != nil {
		return nil, err
	}

	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.NewRaw("SELECT pg_try_advisory_lock(?)", id).Scan(ctx, &ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, ErrAlreadyLocked)
	}

	l.Logger.LogLock("acquire", namespace+"/"+key, strconv.FormatInt(id, 10))
	return &pgLease{conn: conn, id: id, name: namespace + "/" + key, logger: l.Logger}, nil
}

type pgLease struct {
	conn   bun.Conn
	id     int64
	name   string
	logger *logger.Logger
}

func (l *pgLease) Unlock(ctx context.Context) error {
	defer l.conn.Close()

	var ok bool
	if err := l.conn.NewRaw("SELECT pg_advisory_unlock(?)", l.id).Scan(ctx, &ok); err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	if !ok {
		l.logger.Warn("LOCK", fmt.Sprintf("Advisory lock %s was not held at unlock", l.name))
	}
	l.logger.LogLock("release", l.name, strconv.FormatInt(l.id, 10))
	return nil
}
