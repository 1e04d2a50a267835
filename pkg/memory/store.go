package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    embedding BLOB,
    type TEXT NOT NULL,
    source TEXT,
    agent_id TEXT,
    tags TEXT,
    provider TEXT,
    timestamp TIMESTAMP,
    content_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(type);
CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);
CREATE INDEX IF NOT EXISTS idx_entries_last_accessed_at ON entries(last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_entries_content_hash ON entries(content_hash);

CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    content,
    content='entries',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.id, old.content);
    INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
END;
`

// Store is a SQLite-backed, FTS-indexed, size-bounded memory store. SQLite
// only supports one writer at a time, so Store serializes access through a
// single connection plus a mutex around entryCount bookkeeping, the same
// defense the teacher's DBPool uses for its sqlite3 pools.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	entryCount int
}

// Open creates or opens the database at cfg.Path, initializes the schema,
// and returns a ready Store.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.SetDefaults()
	if cfg.Path == "" {
		return nil, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to open memory database")
	}
	// SQLite allows only one writer; a single connection avoids "database
	// is locked" errors under concurrent access.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		logger.Warn("failed to enable WAL mode", "error", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
		logger.Warn("failed to set busy timeout", "error", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to initialize memory schema")
	}

	s := &Store{db: db, cfg: cfg, logger: logger}
	if err := s.loadEntryCount(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadEntryCount(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to count entries")
	}
	s.mu.Lock()
	s.entryCount = count
	s.mu.Unlock()
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func tagsToJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func tagsFromJSON(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	_ = json.Unmarshal([]byte(raw), &tags)
	return tags
}

func scanEntry(row interface {
	Scan(dest ...any) error
}) (Entry, error) {
	var e Entry
	var embedding sql.NullString
	var source, agentID, provider, tagsJSON sql.NullString
	var timestamp sql.NullTime

	err := row.Scan(
		&e.ID, &e.Content, &embedding, &e.Metadata.Type, &source, &agentID, &tagsJSON,
		&provider, &timestamp, &e.CreatedAt, &e.AccessCount, &e.LastAccessedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	if embedding.Valid {
		e.Embedding = []byte(embedding.String)
	}
	e.Metadata.Source = source.String
	e.Metadata.AgentID = agentID.String
	e.Metadata.Provider = provider.String
	e.Metadata.Tags = tagsFromJSON(tagsJSON.String)
	if timestamp.Valid {
		e.Metadata.Timestamp = timestamp.Time
	}
	return e, nil
}

const entryColumns = "id, content, embedding, type, source, agent_id, tags, provider, timestamp, created_at, access_count, last_accessed_at"

// Add inserts a new entry, assigning its id and timestamps. If the store is
// at MaxEntries, the oldest CleanupBatchSize entries (by lastAccessedAt) are
// evicted first, atomically with the insert.
func (s *Store) Add(ctx context.Context, content string, embedding []byte, meta Metadata) (*Entry, error) {
	if meta.Type == "" {
		meta.Type = EntryTypeOther
	}
	now := time.Now()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to begin add transaction")
	}
	defer tx.Rollback()

	if s.entryCount >= s.cfg.MaxEntries {
		evicted, err := evictOldestTx(ctx, tx, s.cfg.CleanupBatchSize())
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to evict oldest entries")
		}
		s.entryCount -= evicted
	}

	var embeddingArg any
	if embedding != nil {
		embeddingArg = string(embedding)
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO entries (content, embedding, type, source, agent_id, tags, provider, timestamp, content_hash, created_at, access_count, last_accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
`, content, embeddingArg, string(meta.Type), meta.Source, meta.AgentID, tagsToJSON(meta.Tags), meta.Provider, meta.Timestamp, contentHash(content), now, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to insert entry")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to read inserted id")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to commit add transaction")
	}
	s.entryCount++

	return &Entry{
		ID:             id,
		Content:        content,
		Embedding:      embedding,
		Metadata:       meta,
		CreatedAt:      now,
		AccessCount:    0,
		LastAccessedAt: now,
	}, nil
}

// evictOldestTx deletes the batch oldest entries by lastAccessedAt within
// tx, returning how many rows were removed.
func evictOldestTx(ctx context.Context, tx *sql.Tx, batch int) (int, error) {
	res, err := tx.ExecContext(ctx, `
DELETE FROM entries WHERE id IN (
    SELECT id FROM entries ORDER BY last_accessed_at ASC, id ASC LIMIT ?
)
`, batch)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Get retrieves a single entry by id.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeMemoryNotFound, "memory entry not found").WithContext("id", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryQueryError, err, "failed to get entry")
	}
	return &e, nil
}

// GetAll lists entries with optional type/tag filtering, pagination, and
// ordering.
func (s *Store) GetAll(ctx context.Context, opts GetAllOptions) ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM entries WHERE 1=1"
	var args []any

	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, string(opts.Type))
	}
	for _, tag := range opts.Tags {
		query += " AND tags LIKE ?"
		args = append(args, "%\""+tag+"\"%")
	}

	orderCol := "created_at"
	switch opts.OrderBy {
	case OrderByAccessed:
		orderCol = "last_accessed_at"
	case OrderByCount:
		orderCol = "access_count"
	}
	dir := "DESC"
	if opts.Order == Asc {
		dir = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderCol, dir)

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryQueryError, err, "failed to list entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMemoryQueryError, err, "failed to scan entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Search performs an FTS query over content, optionally filtered by type and
// tags. When TrackAccess is enabled, each returned entry's accessCount and
// lastAccessedAt are updated in a single prepared statement per entry.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]Entry, error) {
	if len(opts.Vector) > 0 {
		return nil, apperrors.New(apperrors.CodeMemoryQueryError, "vector backend not configured")
	}
	if opts.Text == "" {
		return s.GetAll(ctx, GetAllOptions{Type: opts.Type, Tags: opts.Tags, Limit: opts.Limit})
	}

	query := `
SELECT ` + prefixed(entryColumns, "e") + `
FROM entries e
JOIN entries_fts f ON e.id = f.rowid
WHERE entries_fts MATCH ?
`
	args := []any{opts.Text}

	if opts.Type != "" {
		query += " AND e.type = ?"
		args = append(args, string(opts.Type))
	}
	for _, tag := range opts.Tags {
		query += " AND e.tags LIKE ?"
		args = append(args, "%\""+tag+"\"%")
	}
	query += " ORDER BY rank"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryQueryError, err, "failed to search entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMemoryQueryError, err, "failed to scan search result")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryQueryError, err, "failed to iterate search results")
	}

	if s.cfg.TrackAccess {
		s.recordAccess(ctx, out)
	}
	return out, nil
}

func prefixed(columns, alias string) string {
	out := ""
	start := 0
	for i := 0; i <= len(columns); i++ {
		if i == len(columns) || columns[i] == ',' {
			col := columns[start:i]
			for len(col) > 0 && col[0] == ' ' {
				col = col[1:]
			}
			if out != "" {
				out += ", "
			}
			out += alias + "." + col
			start = i + 1
		}
	}
	return out
}

func (s *Store) recordAccess(ctx context.Context, entries []Entry) {
	now := time.Now()
	stmt, err := s.db.PrepareContext(ctx, "UPDATE entries SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?")
	if err != nil {
		s.logger.Warn("failed to prepare access-tracking statement", "error", err)
		return
	}
	defer stmt.Close()

	for i := range entries {
		if _, err := stmt.ExecContext(ctx, now, entries[i].ID); err != nil {
			s.logger.Warn("failed to record memory access", "id", entries[i].ID, "error", err)
			continue
		}
		entries[i].AccessCount++
		entries[i].LastAccessedAt = now
	}
}

// Delete removes one entry by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to delete entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to read delete result")
	}
	if n == 0 {
		return apperrors.New(apperrors.CodeMemoryNotFound, "memory entry not found").WithContext("id", id)
	}
	s.entryCount--
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to clear entries")
	}
	s.entryCount = 0
	return nil
}

// Cleanup evicts entries older than olderThanDays (by createdAt), returning
// the number removed.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to clean up entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeMemoryDatabaseError, err, "failed to read cleanup result")
	}
	s.entryCount -= int(n)
	return int(n), nil
}

// GetStats reports store occupancy and on-disk size.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	total := s.entryCount
	s.mu.Unlock()

	stats := Stats{TotalEntries: total}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DBSizeBytes = pageCount * pageSize
			stats.MemoryUsageBytes = stats.DBSizeBytes
		}
	}
	return stats, nil
}
