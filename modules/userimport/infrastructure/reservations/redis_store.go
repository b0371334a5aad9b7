package reservations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares username claims between processes. Claims expire after
// ttl so a crashed batch cannot hold a name forever.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, prefix: "userimport:reservations", ttl: ttl}
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("%s:%s", s.prefix, strings.ToLower(name))
}

func (s *RedisStore) IsReserved(ctx context.Context, name string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Reserve(ctx context.Context, name, owner string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.key(name), owner, s.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	holder, err := s.redis.Get(ctx, s.key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return holder == owner, nil
}

func (s *RedisStore) Release(ctx context.Context, name, owner string) error {
	return releaseScript.Run(ctx, s.redis, []string{s.key(name)}, owner).Err()
}
