package db

import (
	"fmt"

	"LecturerVote/config"

	log "github.com/sirupsen/logrus"
)

// Open 按 store.driver 打开 kv 存储以及配套的锁
func Open(conf *config.GlobalConfig) (Store, Locker, error) {
	lockConf := conf.LockConfig
	switch conf.StoreConfig.Driver {
	case config.DriverRedis:
		client, err := NewRedisClient(conf.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("addr", client.Options().Addr).Info("using redis store")
		return NewRedisStore(client), NewRedisLocker(client, lockConf.TTL, lockConf.Wait), nil
	case config.DriverBolt:
		store, err := NewBoltStore(conf.BoltConfig.Path)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", conf.BoltConfig.Path).Info("using bbolt store")
		return store, NewLocalLocker(lockConf.Wait), nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", conf.StoreConfig.Driver)
	}
}
