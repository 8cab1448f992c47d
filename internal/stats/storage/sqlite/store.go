// Package sqlite provides the SQLite-backed usage analytics store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/mcpstat/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/mcpstat/internal/stats/storage"
	"github.com/louisbranch/mcpstat/internal/stats/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// metadataSchemaVersion stamps metadata rows with the migration level that
// produced their shape.
const metadataSchemaVersion = 2

// timeFormat stores timestamps as UTC RFC 3339 text at second precision, so
// lexical order matches chronological order.
const timeFormat = time.RFC3339

// Store persists usage analytics in SQLite.
//
// Every operation is serialized behind one mutex: writes are mutually
// exclusive and each upsert runs as a single statement or transaction, so
// concurrent recorders never interleave.
type Store struct {
	sqlDB *sql.DB
	mu    sync.Mutex
	clock func() time.Time
}

// Open opens a SQLite usage store at the provided path, creating the parent
// directory if needed, and applies embedded migrations before returning.
// Schema initialization is eager so concurrent callers never race on it.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) now() string {
	return s.clock().UTC().Truncate(time.Second).Format(timeFormat)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// estimateTokens derives a token count from a response size using the
// ~3.5 chars/token heuristic. Only meaningful when actual counts are absent.
func estimateTokens(responseChars int64) int64 {
	if responseChars <= 0 {
		return 0
	}
	estimated := int64(float64(responseChars) / 3.5)
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// RecordCall atomically upserts the usage counters for one invocation: a new
// record starts at call_count 1 with the supplied deltas; an existing record
// has its count incremented, sums accumulated, kind overwritten, and latency
// extrema narrowed.
func (s *Store) RecordCall(ctx context.Context, sample storage.CallSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(sample.Name)
	if name == "" {
		return fmt.Errorf("entity name is required")
	}
	kind := sample.Kind
	if kind == "" {
		kind = storage.KindTool
	}

	var duration sql.NullInt64
	var durationDelta int64
	if sample.DurationMS != nil {
		duration = sql.NullInt64{Int64: *sample.DurationMS, Valid: true}
		durationDelta = *sample.DurationMS
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO mcpstat_usage (
		   name, kind, call_count, last_accessed, created_at,
		   total_input_tokens, total_output_tokens, total_response_chars,
		   estimated_tokens, total_duration_ms, min_duration_ms, max_duration_ms
		 ) VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   kind = excluded.kind,
		   call_count = call_count + 1,
		   last_accessed = excluded.last_accessed,
		   total_input_tokens = total_input_tokens + excluded.total_input_tokens,
		   total_output_tokens = total_output_tokens + excluded.total_output_tokens,
		   total_response_chars = total_response_chars + excluded.total_response_chars,
		   estimated_tokens = estimated_tokens + excluded.estimated_tokens,
		   total_duration_ms = total_duration_ms + excluded.total_duration_ms,
		   min_duration_ms = CASE
		     WHEN excluded.min_duration_ms IS NULL THEN min_duration_ms
		     WHEN min_duration_ms IS NULL THEN excluded.min_duration_ms
		     ELSE MIN(min_duration_ms, excluded.min_duration_ms)
		   END,
		   max_duration_ms = CASE
		     WHEN excluded.max_duration_ms IS NULL THEN max_duration_ms
		     WHEN max_duration_ms IS NULL THEN excluded.max_duration_ms
		     ELSE MAX(max_duration_ms, excluded.max_duration_ms)
		   END`,
		name,
		string(kind),
		now,
		now,
		sample.InputTokens,
		sample.OutputTokens,
		sample.ResponseChars,
		estimateTokens(sample.ResponseChars),
		durationDelta,
		duration,
		duration,
	)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// AddTokens adds to an entity's cumulative token sums without incrementing
// its call count, for token counts that become known after the call. An
// unknown name updates zero rows and is not an error.
func (s *Store) AddTokens(ctx context.Context, name string, inputTokens, outputTokens int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("entity name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE mcpstat_usage
		    SET total_input_tokens = total_input_tokens + ?,
		        total_output_tokens = total_output_tokens + ?
		  WHERE name = ?`,
		inputTokens,
		outputTokens,
		name,
	)
	if err != nil {
		return fmt.Errorf("add tokens: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
