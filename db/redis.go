package db

import (
	"context"
	"fmt"

	"LecturerVote/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建 redis 连接并做一次连接测试
func NewRedisClient(redisConfig config.RedisConf) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisConfig.PassWord,
		DB:       redisConfig.DB,
		PoolSize: redisConfig.PoolSize,
	})

	// 连接测试以确保与 Redis 服务器的通信正常。
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return client, nil
}

var _ Store = (*RedisStore)(nil)

// RedisStore 用 hash 保存对象，用 set 保存集合
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) GetObject(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (s *RedisStore) SetObject(ctx context.Context, key string, fields map[string]string) error {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return unavailable("hset", key, err)
	}
	return nil
}

func (s *RedisStore) SetObjectIndexed(ctx context.Context, key string, fields map[string]string, indexKey, member string) error {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	// MULTI/EXEC 保证记录和索引一起生效
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.SAdd(ctx, indexKey, member)
		return nil
	})
	if err != nil {
		return unavailable("hset+sadd", key, err)
	}
	return nil
}

func (s *RedisStore) IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, unavailable("hincrby", key, err)
	}
	return n, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("sadd", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return unavailable("srem", key, err)
	}
	return nil
}

func (s *RedisStore) IsSetMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("sismember", key, err)
	}
	return ok, nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable("smembers", key, err)
	}
	return members, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
