package httpcache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps entries on disk so a warmed cache survives restarts.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) a cache database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("httpcache: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("httpcache: pragma %s: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status INTEGER NOT NULL,
		header TEXT NOT NULL,
		request TEXT NOT NULL DEFAULT '{}',
		body BLOB,
		stored_at INTEGER NOT NULL,
		fresh_until INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("httpcache: schema: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Get(key string) (*Entry, bool) {
	var (
		e          Entry
		header     string
		request    string
		storedAt   int64
		freshUntil int64
	)
	row := s.db.QueryRow(`SELECT url, status, header, request, body, stored_at, fresh_until FROM responses WHERE key = ?`, key)
	if err := row.Scan(&e.URL, &e.StatusCode, &header, &request, &e.Body, &storedAt, &freshUntil); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("httpcache: read failed", "key", key, "error", err)
		}
		return nil, false
	}
	e.Header = make(http.Header)
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		s.logger.Warn("httpcache: corrupt header", "key", key, "error", err)
		return nil, false
	}
	e.Request = make(http.Header)
	if err := json.Unmarshal([]byte(request), &e.Request); err != nil {
		s.logger.Warn("httpcache: corrupt request header", "key", key, "error", err)
		return nil, false
	}
	e.StoredAt = time.UnixMilli(storedAt)
	e.FreshUntil = time.UnixMilli(freshUntil)
	return &e, true
}

func (s *SQLite) Put(key string, e *Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("httpcache: marshal header: %w", err)
	}
	request, err := json.Marshal(e.Request)
	if err != nil {
		return fmt.Errorf("httpcache: marshal request header: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO responses (key, url, status, header, request, body, stored_at, fresh_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			header = excluded.header,
			request = excluded.request,
			body = excluded.body,
			stored_at = excluded.stored_at,
			fresh_until = excluded.fresh_until`,
		key, e.URL, e.StatusCode, string(header), string(request), e.Body, e.StoredAt.UnixMilli(), e.FreshUntil.UnixMilli())
	if err != nil {
		return fmt.Errorf("httpcache: store %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		s.logger.Warn("httpcache: count failed", "error", err)
		return 0
	}
	return n
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
