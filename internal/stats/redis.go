package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"go.uber.org/zap"
)

// RedisStore keeps counters in a Redis hash so totals survive restarts and
// are shared between replicas
type RedisStore struct {
	client *redis.Client
	key    string
	logger *logger.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.StatsConfig, log *logger.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	store := newRedisStore(client, cfg.KeyPrefix, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis statistics store initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.String("key", store.key))

	return store, nil
}

func newRedisStore(client *redis.Client, prefix string, log *logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = "scrubber"
	}
	return &RedisStore{
		client: client,
		key:    prefix + ":categories",
		logger: log,
	}
}

// Incr adds counts with one HINCRBY per category in a single pipeline
func (r *RedisStore) Incr(ctx context.Context, counts map[string]int) error {
	pipe := r.client.Pipeline()
	queued := 0
	for category, n := range counts {
		if n <= 0 {
			continue
		}
		pipe.HIncrBy(ctx, r.key, category, int64(n))
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment statistics: %w", err)
	}
	return nil
}

// Snapshot reads the whole counter hash
func (r *RedisStore) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for category, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.logger.Warn("Skipping malformed counter", zap.String("category", category))
			continue
		}
		out[category] = n
	}
	return out, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
