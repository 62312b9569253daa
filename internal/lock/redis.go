package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-activity/internal/logger"
)

// unlockScript deletes the key only while it still carries our token, so an
// expired lease never releases somebody else's lock.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores locks as expiring keys. The TTL bounds how long a
// crashed holder can block others.
type RedisLocker struct {
	Client   *redis.Client
	Registry *Registry
	TTL      time.Duration
	Logger   *logger.Logger
}

func NewRedisLocker(client *redis.Client, registry *Registry, ttl time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{Client: client, Registry: registry, TTL: ttl, Logger: log}
}

func (l *RedisLocker) key(id int64) string {
	return fmt.Sprintf("advisory_lock:%d", id)
}

func (l *RedisLocker) TryLock(ctx context.Context, namespace, key string) (Lease, error) {
	id, err := l.Registry.ID(namespace, key)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	redisKey := l.key(id)
	ok, err := l.Client.SetNX(ctx, redisKey, token, l.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, ErrAlreadyLocked)
	}

	l.Logger.LogLock("acquire", namespace+"/"+key, redisKey)
	return &redisLease{client: l.Client, key: redisKey, token: token, name: namespace + "/" + key, logger: l.Logger}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	name   string
	logger *logger.Logger
}

func (l *redisLease) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("redis unlock: %w", err)
	}
	if n == 0 {
		l.logger.Warn("LOCK", fmt.Sprintf("Lock %s expired before release", l.name))
		return nil
	}
	l.logger.LogLock("release", l.name, l.key)
	return nil
}
