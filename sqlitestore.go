package macrolog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable QueueStore backed by a single SQLite file. It
// survives process restarts, which is what makes queued writes deliverable
// after the application comes back.
type SQLiteStore struct {
	db     *sql.DB
	window time.Duration
	now    func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS queued_requests (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	method     TEXT NOT NULL,
	headers    TEXT,
	body       BLOB,
	attempts   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'pending',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cached_responses (
	address   TEXT PRIMARY KEY,
	data      BLOB NOT NULL,
	stored_at INTEGER NOT NULL
);
`

// OpenSQLiteStore opens (creating if needed) the queue database at path.
// The database is opened with WAL mode and a single writer connection; the
// pure-Go driver keeps the SDK CGO-free.
func OpenSQLiteStore(path string, opts *StoreOptions) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite supports a single writer only.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	window := DefaultFreshnessWindow
	if opts != nil && opts.FreshnessWindow > 0 {
		window = opts.FreshnessWindow
	}
	return &SQLiteStore{db: db, window: window, now: time.Now}, nil
}

func (s *SQLiteStore) AddQueuedRequest(req *QueuedRequest) error {
	headers, err := json.Marshal(req.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO queued_requests
		 (id, url, method, headers, body, attempts, status, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.URL, req.Method, string(headers), []byte(req.Body),
		req.Attempts, req.Status, req.LastError, req.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store queued request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListQueuedRequests() ([]*QueuedRequest, error) {
	rows, err := s.db.Query(
		`SELECT id, url, method, headers, body, attempts, status, last_error, created_at
		 FROM queued_requests ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued requests: %w", err)
	}
	defer rows.Close()

	var result []*QueuedRequest
	for rows.Next() {
		var (
			req       QueuedRequest
			headers   string
			body      []byte
			createdAt int64
		)
		if err := rows.Scan(&req.ID, &req.URL, &req.Method, &headers, &body,
			&req.Attempts, &req.Status, &req.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued request: %w", err)
		}
		if headers != "" {
			if err := json.Unmarshal([]byte(headers), &req.Headers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
			}
		}
		if len(body) > 0 {
			req.Body = json.RawMessage(body)
		}
		req.CreatedAt = time.UnixMilli(createdAt)
		result = append(result, &req)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) RecordFailure(id, message string, abandon bool) error {
	status := StatusPending
	if abandon {
		status = StatusAbandoned
	}
	_, err := s.db.Exec(
		`UPDATE queued_requests SET attempts = attempts + 1, last_error = ?, status = ?
		 WHERE id = ?`,
		message, status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveQueuedRequest(id string) error {
	if _, err := s.db.Exec(`DELETE FROM queued_requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queued request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearQueuedRequests() error {
	if _, err := s.db.Exec(`DELETE FROM queued_requests`); err != nil {
		return fmt.Errorf("failed to clear queued requests: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM queued_requests WHERE status = ?`, StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) PutCachedResponse(address string, data json.RawMessage) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cached_responses (address, data, stored_at) VALUES (?, ?, ?)`,
		address, []byte(data), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cached response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCachedResponse(address string) (json.RawMessage, error) {
	var (
		data     []byte
		storedAt int64
	)
	err := s.db.QueryRow(
		`SELECT data, stored_at FROM cached_responses WHERE address = ?`, address,
	).Scan(&data, &storedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached response: %w", err)
	}
	if s.now().Sub(time.UnixMilli(storedAt)) >= s.window {
		// Lazy eviction; a failure here does not matter, the entry is
		// unservable either way.
		s.db.Exec(`DELETE FROM cached_responses WHERE address = ?`, address)
		return nil, ErrNotFound
	}
	return json.RawMessage(data), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
