package db

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const lockKeyPrefix = "lock:"

// 只删除自己持有的锁
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`

var _ Locker = (*RedisLocker)(nil)

// RedisLocker redis 分布式锁，多个实例共享同一个 redis 时使用
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration // 锁的过期时间，持有者崩溃后自动释放
	wait   time.Duration // 最长等待时间
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	lockVal := uuid.NewString() // 用于标识锁的持有者

	deadline := time.Now().Add(l.wait)
	// 循环直到获取锁或超过最大等待时间
	for {
		locked, err := l.client.SetNX(ctx, lockKey, lockVal, l.ttl).Result()
		if err != nil {
			return nil, unavailable("setnx", lockKey, err)
		}
		if locked {
			return func() {
				// 使用 Lua 脚本来安全释放锁
				_, err := l.client.Eval(context.Background(), releaseScript, []string{lockKey}, lockVal).Result()
				if err != nil {
					log.WithError(err).WithField("key", lockKey).Warn("failed to release lock")
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, key, l.wait)
		}
		// 随机等待，减少锁竞争
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Intn(40)+10) * time.Millisecond):
		}
	}
}

var _ Locker = (*LocalLocker)(nil)

// LocalLocker 进程内的按 key 互斥，用于 bbolt 这种单进程存储
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: map[string]*keyLock{}, wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(key, kl)
		return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, key, l.wait)
	}
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
