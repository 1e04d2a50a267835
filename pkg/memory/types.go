// Package memory implements the FTS-indexed, size-bounded entry store that
// feeds context assembly. Entries are persisted in SQLite with an FTS5
// virtual table kept in sync by triggers; size is bounded by evicting the
// oldest entries (by last access) on overflow.
package memory

import "time"

// EntryType classifies a memory entry for filtering.
type EntryType string

const (
	EntryTypeConversation EntryType = "conversation"
	EntryTypeCode         EntryType = "code"
	EntryTypeDocument     EntryType = "document"
	EntryTypeTask         EntryType = "task"
	EntryTypeOther        EntryType = "other"
)

// Metadata accompanies every entry. Type is required; the rest are optional
// classification hints.
type Metadata struct {
	Type      EntryType
	Source    string
	AgentID   string
	Tags      []string
	Provider  string
	Timestamp time.Time
}

// Entry is one stored memory record.
type Entry struct {
	ID             int64
	Content        string
	Embedding      []byte
	Metadata       Metadata
	CreatedAt      time.Time
	AccessCount    int
	LastAccessedAt time.Time
}

// OrderBy selects the sort key for GetAll.
type OrderBy string

const (
	OrderByCreated  OrderBy = "created"
	OrderByAccessed OrderBy = "accessed"
	OrderByCount    OrderBy = "count"
)

// SortOrder selects ascending or descending order.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// GetAllOptions filters and paginates GetAll.
type GetAllOptions struct {
	Type    EntryType
	Tags    []string
	Limit   int
	Offset  int
	OrderBy OrderBy
	Order   SortOrder
}

// SearchOptions filters and bounds Search. Text drives the FTS query;
// Vector is accepted for interface compatibility but this implementation
// has no vector backend (see DESIGN.md): a non-empty Vector makes Search
// fail with CodeMemoryQueryError.
type SearchOptions struct {
	Text      string
	Vector    []float32
	Type      EntryType
	Tags      []string
	Limit     int
	Threshold float64
}

// Stats summarizes store occupancy.
type Stats struct {
	TotalEntries     int
	DBSizeBytes      int64
	IndexSizeBytes   int64
	MemoryUsageBytes int64
}

// ExportFilter narrows what ExportToJSON writes out.
type ExportFilter struct {
	Type EntryType
	Tags []string
}

// ImportOptions controls ImportFromJSON behavior.
type ImportOptions struct {
	// SkipDuplicates discards entries whose content hash already exists.
	SkipDuplicates bool
	// BatchSize bounds how many entries are inserted per transaction. Zero
	// means DefaultImportBatchSize.
	BatchSize int
	// Validate, when true, only checks the import file's structure and
	// reports errors/warnings without mutating the store.
	Validate bool
}

// ImportResult reports the outcome of ImportFromJSON.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
	Warnings []string
}

// DefaultImportBatchSize is used when ImportOptions.BatchSize is unset.
const DefaultImportBatchSize = 100

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file path. Required.
	Path string

	// MaxEntries bounds total entry count. Zero means DefaultMaxEntries.
	MaxEntries int

	// CleanupBatchPercent is the fraction (0-100) of MaxEntries evicted when
	// an insert would exceed MaxEntries. Zero means DefaultCleanupBatchPercent.
	CleanupBatchPercent int

	// TrackAccess enables accessCount/lastAccessedAt updates on Search hits.
	TrackAccess bool
}

// DefaultMaxEntries is the default entry cap.
const DefaultMaxEntries = 10000

// DefaultCleanupBatchPercent evicts 10% of MaxEntries on overflow, per spec.
const DefaultCleanupBatchPercent = 10

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.CleanupBatchPercent <= 0 {
		c.CleanupBatchPercent = DefaultCleanupBatchPercent
	}
}

// CleanupBatchSize returns how many entries an overflow eviction removes.
func (c *Config) CleanupBatchSize() int {
	n := c.MaxEntries * c.CleanupBatchPercent / 100
	if n < 1 {
		n = 1
	}
	return n
}
