package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// exportedEntry is the on-disk JSON shape for one entry. Kept distinct from
// Entry so the export format can evolve independently of the in-memory
// struct.
type exportedEntry struct {
	ID             int64     `json:"id"`
	Content        string    `json:"content"`
	Type           EntryType `json:"type"`
	Source         string    `json:"source,omitempty"`
	AgentID        string    `json:"agentId,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	AccessCount    int       `json:"accessCount"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

func toExported(e Entry) exportedEntry {
	return exportedEntry{
		ID:             e.ID,
		Content:        e.Content,
		Type:           e.Metadata.Type,
		Source:         e.Metadata.Source,
		AgentID:        e.Metadata.AgentID,
		Tags:           e.Metadata.Tags,
		Provider:       e.Metadata.Provider,
		Timestamp:      e.Metadata.Timestamp,
		CreatedAt:      e.CreatedAt,
		AccessCount:    e.AccessCount,
		LastAccessedAt: e.LastAccessedAt,
	}
}

// ExportToJSON writes every entry matching filter to path as a JSON array.
func (s *Store) ExportToJSON(ctx context.Context, path string, filter ExportFilter) error {
	entries, err := s.GetAll(ctx, GetAllOptions{Type: filter.Type, Tags: filter.Tags})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryExportError, err, "failed to load entries for export")
	}

	exported := make([]exportedEntry, len(entries))
	for i, e := range entries {
		exported[i] = toExported(e)
	}

	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryExportError, err, "failed to marshal entries")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryExportError, err, "failed to write export file")
	}
	return nil
}

// ImportFromJSON reads a JSON array previously written by ExportToJSON and
// inserts each entry, skipping duplicates by content hash when requested.
// With opts.Validate, the file is parsed and checked but nothing is
// written.
func (s *Store) ImportFromJSON(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultImportBatchSize
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to read import file")
	}

	var entries []exportedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to parse import file")
	}

	result := &ImportResult{}
	for i, e := range entries {
		if e.Content == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: content is empty", i))
			continue
		}
		if e.Type == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("entry %d: missing type, defaulting to %q", i, EntryTypeOther))
		}
	}
	if opts.Validate {
		return result, nil
	}
	if len(result.Errors) > 0 {
		return result, apperrors.New(apperrors.CodeMemoryImportError, "import file failed validation").
			WithContext("errors", result.Errors)
	}

	existingHashes, err := s.existingContentHashes(ctx)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := s.importBatch(ctx, entries[start:end], opts.SkipDuplicates, existingHashes, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Store) existingContentHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT content_hash FROM entries")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to read existing content hashes")
	}
	defer rows.Close()

	hashes := map[string]struct{}{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to scan content hash")
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

func (s *Store) importBatch(ctx context.Context, batch []exportedEntry, skipDuplicates bool, existingHashes map[string]struct{}, result *ImportResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to begin import transaction")
	}
	defer tx.Rollback()

	for _, e := range batch {
		hash := contentHash(e.Content)
		if skipDuplicates {
			if _, exists := existingHashes[hash]; exists {
				result.Skipped++
				continue
			}
		}

		entryType := e.Type
		if entryType == "" {
			entryType = EntryTypeOther
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		lastAccessedAt := e.LastAccessedAt
		if lastAccessedAt.IsZero() {
			lastAccessedAt = createdAt
		}

		if s.entryCount >= s.cfg.MaxEntries {
			evicted, err := evictOldestTx(ctx, tx, s.cfg.CleanupBatchSize())
			if err != nil {
				return apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to evict during import")
			}
			s.entryCount -= evicted
		}

		_, err := tx.ExecContext(ctx, `
INSERT INTO entries (content, embedding, type, source, agent_id, tags, provider, timestamp, content_hash, created_at, access_count, last_accessed_at)
VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.Content, string(entryType), e.Source, e.AgentID, tagsToJSON(e.Tags), e.Provider, e.Timestamp, hash, createdAt, e.AccessCount, lastAccessedAt)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to insert imported entry")
		}
		existingHashes[hash] = struct{}{}
		s.entryCount++
		result.Imported++
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeMemoryImportError, err, "failed to commit import batch")
	}
	return nil
}
