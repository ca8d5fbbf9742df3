package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

const (
	lockPrefix     = "eidos:retention:lock:"
	defaultLockTTL = 5 * time.Minute
)

// ErrLockNotHeld 锁已过期或被其他实例持有
var ErrLockNotHeld = errors.New("run lock not held")

// RunLocker 按数据类型互斥清理执行
type RunLocker interface {
	// Acquire 尝试获取锁, 未获取到时返回 ok=false
	Acquire(ctx context.Context, dataType model.DataType) (release func(context.Context) error, ok bool, err error)
}

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`

const renewScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`

// RedisRunLock 基于 Redis SET NX 的数据类型级互斥锁, 持有期间自动续期
type RedisRunLock struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisRunLock 创建 Redis 运行锁
func NewRedisRunLock(client redis.UniversalClient, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisRunLock{
		client: client,
		ttl:    ttl,
		log:    logger.Named("scheduler"),
	}
}

// Acquire 实现 RunLocker
func (l *RedisRunLock) Acquire(ctx context.Context, dataType model.DataType) (func(context.Context) error, bool, error) {
	key := lockPrefix + dataType.String()
	value := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.watchdog(key, value, stopCh)
	}()

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stopCh)
			wg.Wait()
			_, err = l.client.Eval(ctx, releaseScript, []string{key}, value).Result()
			if errors.Is(err, redis.Nil) {
				err = nil
			}
		})
		if err != nil {
			return fmt.Errorf("release run lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// watchdog 在 TTL 的 1/3 时间点续期
func (l *RedisRunLock) watchdog(key, value string, stopCh <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := l.renew(key, value); err != nil {
				l.log.Warn("failed to renew run lock",
					zap.String("key", key),
					zap.Error(err))
			}
		}
	}
}

func (l *RedisRunLock) renew(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()

	result, err := l.client.Eval(ctx, renewScript, []string{key}, value, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsLocked 数据类型当前是否被锁定
func (l *RedisRunLock) IsLocked(ctx context.Context, dataType model.DataType) (bool, error) {
	n, err := l.client.Exists(ctx, lockPrefix+dataType.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ RunLocker = (*RedisRunLock)(nil)
