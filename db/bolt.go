package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	hashesBucket = []byte("hashes")
	setsBucket   = []byte("sets")
)

var _ Store = (*BoltStore)(nil)

// BoltStore 单机嵌入式存储。hash 以 json 保存在 hashes 桶中，
// 每个集合是 sets 桶下的一个子桶，成员就是子桶的 key。
// 每个操作都在一个 bbolt 事务里完成。
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(hashesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(setsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ensure root buckets exist: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(hashesBucket).Get([]byte(key)) != nil ||
			tx.Bucket(setsBucket).Bucket([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, unavailable("exists", key, err)
	}
	return exists, nil
}

func (s *BoltStore) GetObject(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		fields, err = readHash(tx, key)
		return err
	})
	if err != nil {
		return nil, unavailable("getobject", key, err)
	}
	return fields, nil
}

func (s *BoltStore) SetObject(ctx context.Context, key string, fields map[string]string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := readHash(tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			current = make(map[string]string, len(fields))
		}
		for k, v := range fields {
			current[k] = v
		}
		return writeHash(tx, key, current)
	})
	if err != nil {
		return unavailable("setobject", key, err)
	}
	return nil
}

func (s *BoltStore) SetObjectIndexed(ctx context.Context, key string, fields map[string]string, indexKey, member string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := readHash(tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			current = make(map[string]string, len(fields))
		}
		for k, v := range fields {
			current[k] = v
		}
		if err := writeHash(tx, key, current); err != nil {
			return err
		}
		set, err := tx.Bucket(setsBucket).CreateBucketIfNotExists([]byte(indexKey))
		if err != nil {
			return err
		}
		return set.Put([]byte(member), []byte{})
	})
	if err != nil {
		return unavailable("setobjectindexed", key, err)
	}
	return nil
}

func (s *BoltStore) IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error) {
	var result int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := readHash(tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			current = map[string]string{}
		}
		var n int64
		if raw, ok := current[field]; ok {
			n, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("field %s is not an integer", field)
			}
		}
		result = n + delta
		current[field] = strconv.FormatInt(result, 10)
		return writeHash(tx, key, current)
	})
	if err != nil {
		return 0, unavailable("incrobjectfield", key, err)
	}
	return result, nil
}

func (s *BoltStore) SetAdd(ctx context.Context, key, member string) (bool, error) {
	var added bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		set, err := tx.Bucket(setsBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		if set.Get([]byte(member)) != nil {
			return nil
		}
		added = true
		return set.Put([]byte(member), []byte{})
	})
	if err != nil {
		return false, unavailable("setadd", key, err)
	}
	return added, nil
}

func (s *BoltStore) SetRemove(ctx context.Context, key, member string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		return set.Delete([]byte(member))
	})
	if err != nil {
		return unavailable("setremove", key, err)
	}
	return nil
}

func (s *BoltStore) IsSetMember(ctx context.Context, key, member string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		ok = set != nil && set.Get([]byte(member)) != nil
		return nil
	})
	if err != nil {
		return false, unavailable("issetmember", key, err)
	}
	return ok, nil
}

func (s *BoltStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		return set.ForEach(func(k, _ []byte) error {
			members = append(members, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("setmembers", key, err)
	}
	return members, nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(hashesBucket).Delete([]byte(key)); err != nil {
			return err
		}
		err := tx.Bucket(setsBucket).DeleteBucket([]byte(key))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	if err := s.db.View(func(tx *bolt.Tx) error { return nil }); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func readHash(tx *bolt.Tx, key string) (map[string]string, error) {
	raw := tx.Bucket(hashesBucket).Get([]byte(key))
	if raw == nil {
		return nil, nil
	}
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode hash %s: %w", key, err)
	}
	return fields, nil
}

func writeHash(tx *bolt.Tx, key string, fields map[string]string) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return tx.Bucket(hashesBucket).Put([]byte(key), raw)
}
