package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// Syncer 定期刷盘的对象
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// SyncLoop 每隔 interval 刷盘一次，ctx 结束时再刷一次后返回
func SyncLoop(ctx context.Context, syncer Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			syncOnce(ctx, syncer)
		case <-ctx.Done():
			// 保证退出前最新的票数能够刷盘
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			syncOnce(final, syncer)
			cancel()
			return
		}
	}
}

func syncOnce(ctx context.Context, syncer Syncer) {
	n, err := syncer.Sync(ctx)
	if err != nil {
		log.WithError(err).Error("archive sync failed")
		return
	}
	log.WithField("tallies", n).Debug("archive synced")
}

// ShutdownContext 收到 SIGINT/SIGTERM 时取消的 context
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
