package credential

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// stringGetter is the subset of redis.Cmdable the store needs.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore reads the credential from a Redis string key, where the
// session layer that issues tokens keeps it.
type RedisStore struct {
	client stringGetter
	key    string
	logger *zerolog.Logger
}

func NewRedisStore(client stringGetter, key string, logger *zerolog.Logger) *RedisStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context) (string, bool) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", s.key).Msg("failed to read credential from redis")
		}
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}
