package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS redaction_audit (
		id           BIGSERIAL PRIMARY KEY,
		request_id   TEXT        NOT NULL,
		source       TEXT        NOT NULL,
		mode         TEXT        NOT NULL,
		text_length  INTEGER     NOT NULL,
		entity_count INTEGER     NOT NULL,
		counts       JSONB       NOT NULL DEFAULT '{}'::jsonb,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_redaction_audit_created_at ON redaction_audit (created_at DESC)`

// Store persists request summaries in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to the database, applies the pool settings and makes
// sure the audit table exists
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := newStore(db, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	log.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

func newStore(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// EnsureSchema creates the audit table and index when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts one summary. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, summary Summary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO redaction_audit (request_id, source, mode, text_length, entity_count, counts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		summary.RequestID,
		summary.Source,
		summary.Mode,
		summary.TextLength,
		summary.EntityCount,
		summary.Counts,
		summary.CreatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to record audit summary",
			zap.Error(err),
			zap.String("request_id", summary.RequestID))
		return fmt.Errorf("failed to record audit summary: %w", err)
	}
	return nil
}

// Recent returns the latest summaries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, source, mode, text_length, entity_count, counts, created_at
		FROM redaction_audit
		ORDER BY created_at DESC
		LIMIT $1`

	summaries := []Summary{}
	if err := s.db.SelectContext(ctx, &summaries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit summaries: %w", err)
	}
	return summaries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
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
