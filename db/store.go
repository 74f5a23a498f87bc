package db

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable 底层存储无法访问或读写失败
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrLockTimeout 在等待时间内没有拿到锁
	ErrLockTimeout = errors.New("lock wait timeout")
)

// Store 是讲师投票依赖的 kv 存储。值要么是字符串集合，要么是扁平的 hash。
// 每个方法对单个 key 都是原子的。
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// GetObject 返回 hash 的全部字段，key 不存在时返回 nil, nil
	GetObject(ctx context.Context, key string) (map[string]string, error)
	SetObject(ctx context.Context, key string, fields map[string]string) error
	// SetObjectIndexed 在一个事务里写入 hash 并把 member 加入 indexKey 集合，两者要么都成功要么都不写
	SetObjectIndexed(ctx context.Context, key string, fields map[string]string, indexKey, member string) error
	// IncrObjectField 原子地给整数字段加上 delta，返回新值
	IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error)
	// SetAdd 原子地加入集合，返回 member 之前是否不存在
	SetAdd(ctx context.Context, key, member string) (bool, error)
	SetRemove(ctx context.Context, key, member string) error
	IsSetMember(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Locker 提供按 key 的互斥，unlock 必须在所有返回路径上调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, op, key, err)
}
