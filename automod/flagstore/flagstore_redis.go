package flagstore

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

var redisFlagPrefix string = "flags/"

// Each key is a redis set.
type RedisFlagStore struct {
	Client *redis.Client
}

var _ FlagStore = (*RedisFlagStore)(nil)

func NewRedisFlagStore(redisURL string) (*RedisFlagStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisFlagStore{Client: rdb}, nil
}

func (s *RedisFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	l, err := s.Client.SMembers(ctx, redisFlagPrefix+key).Result()
	if err == redis.Nil {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}
	sort.Strings(l)
	return l, nil
}

func (s *RedisFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	l := make([]any, len(flags))
	for i, f := range flags {
		l[i] = f
	}
	return s.Client.SAdd(ctx, redisFlagPrefix+key, l...).Err()
}

// SADD reports how many members were actually added.
func (s *RedisFlagStore) AddNew(ctx context.Context, key, flag string) (bool, error) {
	n, err := s.Client.SAdd(ctx, redisFlagPrefix+key, flag).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	l := make([]any, len(flags))
	for i, f := range flags {
		l[i] = f
	}
	return s.Client.SRem(ctx, redisFlagPrefix+key, l...).Err()
}
