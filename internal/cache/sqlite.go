package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the durable backend. Rows carry an expires_at column and
// reads filter on it, so expiry is enforced by the query itself; Sweep only
// reclaims space. Every row is tagged with the store's namespace and Clear
// never touches other namespaces sharing the file.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
}

func NewSQLiteStore(dbPath string, namespace string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	o := buildOptions(opts)
	store := &SQLiteStore{db: db, namespace: namespace, now: o.now}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT languages, payload_json, created_at
		 FROM translation_cache
		 WHERE namespace = ? AND cache_key = ? AND expires_at > ?`,
		s.namespace,
		key,
		s.now().UnixNano(),
	)

	var languages string
	var payloadJSON string
	var createdAt int64
	if err := row.Scan(&languages, &payloadJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	ret, err := decodeEntry(languages, payloadJSON)
	if err != nil {
		// an unreadable row is a miss; the backend itself is healthy
		log.GetLogger().With("cache").Warn("Dropping undecodable cache row %s: %v", key, err)
		s.evict(ctx, key)
		return Entry{}, false, nil
	}
	ret.CreatedAt = time.Unix(0, createdAt).UTC()
	return ret, true, nil
}

func decodeEntry(languages, payloadJSON string) (Entry, error) {
	var ret Entry
	if err := json.Unmarshal([]byte(payloadJSON), &ret.Result); err != nil {
		return Entry{}, fmt.Errorf("decode cache payload: %w", err)
	}
	if err := ret.Languages.UnmarshalText([]byte(languages)); err != nil {
		return Entry{}, fmt.Errorf("decode cache languages: %w", err)
	}
	return ret, nil
}

func (s *SQLiteStore) evict(ctx context.Context, key string) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM translation_cache WHERE namespace = ? AND cache_key = ?`,
		s.namespace, key,
	)
	if err != nil {
		log.GetLogger().With("cache").Warn("Failed to evict cache row %s: %v", key, err)
	}
}

func (s *SQLiteStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(resultOrEmpty(entry.Result))
	if err != nil {
		return err
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO translation_cache (
			namespace, cache_key, languages, payload_json, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, cache_key) DO UPDATE SET
			languages=excluded.languages,
			payload_json=excluded.payload_json,
			created_at=excluded.created_at,
			expires_at=excluded.expires_at`,
		s.namespace,
		key,
		entry.Languages.String(),
		string(payload),
		createdAt.UnixNano(),
		createdAt.Add(ttl).UnixNano(),
	)
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM translation_cache WHERE namespace = ?`, s.namespace)
	return err
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM translation_cache WHERE namespace = ? AND expires_at > ?`,
		s.namespace,
		s.now().UnixNano(),
	).Scan(&count)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: count, Backend: BackendSQLite}, nil
}

// Sweep deletes rows of this namespace whose expires_at is not after now.
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM translation_cache WHERE namespace = ? AND expires_at <= ?`,
		s.namespace,
		now.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func resultOrEmpty(result map[string]metadata.Translation) map[string]metadata.Translation {
	if result == nil {
		return map[string]metadata.Translation{}
	}
	return result
}
