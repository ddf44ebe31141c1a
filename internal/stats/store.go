package stats

import (
	"context"
	"strings"

	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"go.uber.org/zap"
)

// Store keeps running per-category detection totals. Counts carry no text.
type Store interface {
	Incr(ctx context.Context, counts map[string]int) error
	Snapshot(ctx context.Context) (map[string]int64, error)
	Close() error
}

// New returns a Redis-backed store when enabled and reachable, otherwise an
// in-memory store.
func New(cfg config.StatsConfig, log *logger.Logger) Store {
	if !cfg.RedisEnabled {
		log.Info("Detection statistics kept in memory")
		return NewMemoryStore()
	}

	store, err := NewRedisStore(cfg, log)
	if err != nil {
		log.Warn("Redis statistics unavailable, falling back to memory", zap.Error(err))
		return NewMemoryStore()
	}
	return store
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	schemeEnd := strings.Index(url, "://")
	at := strings.LastIndex(url, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return url
	}
	userinfo := url[schemeEnd+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		userinfo = userinfo[:colon+1] + "***"
	}
	return url[:schemeEnd+3] + userinfo + url[at:]
}
