package control

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"LecturerVote/db"
	"LecturerVote/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}

func newRedisBackend(t *testing.T) (db.Store, db.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return db.NewRedisStore(client), db.NewRedisLocker(client, 5*time.Second, 2*time.Second), mr
}

func newBoltBackend(t *testing.T) (db.Store, db.Locker) {
	t.Helper()
	store, err := db.NewBoltStore(filepath.Join(t.TempDir(), "control.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, db.NewLocalLocker(2 * time.Second)
}

// 两种存储各跑一遍
func forEachBackend(t *testing.T, fn func(t *testing.T, store db.Store, locker db.Locker)) {
	t.Run("redis", func(t *testing.T) {
		store, locker, _ := newRedisBackend(t)
		fn(t, store, locker)
	})
	t.Run("bolt", func(t *testing.T) {
		store, locker := newBoltBackend(t)
		fn(t, store, locker)
	})
}

// IncrObjectField 总是失败
type failingIncrStore struct {
	db.Store
}

func (failingIncrStore) IncrObjectField(context.Context, string, string, int64) (int64, error) {
	return 0, errors.New("boom")
}

// SetAdd 总是失败，用来确认添加讲师不依赖单独的索引写入
type failingIndexStore struct {
	db.Store
}

func (failingIndexStore) SetAdd(context.Context, string, string) (bool, error) {
	return false, errors.New("boom")
}

// blockingPublisher 在 release 关闭或 ctx 结束前一直阻塞
type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
}

func (p *blockingPublisher) Publish(ctx context.Context, _ model.Event) error {
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
