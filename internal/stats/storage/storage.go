// Package storage defines persistence contracts for MCP usage analytics.
package storage

import (
	"context"
	"time"
)

// Kind classifies a tracked entity by MCP primitive type.
type Kind string

const (
	// KindTool marks a tool invocation.
	KindTool Kind = "tool"
	// KindPrompt marks a prompt request.
	KindPrompt Kind = "prompt"
	// KindResource marks a resource read.
	KindResource Kind = "resource"
)

// Kinds lists every primitive kind in report order.
func Kinds() []Kind {
	return []Kind{KindTool, KindResource, KindPrompt}
}

// CallSample carries the per-invocation deltas contributed by one call.
// Zero numeric fields contribute nothing; a nil DurationMS leaves the
// latency extrema untouched.
type CallSample struct {
	Name          string
	Kind          Kind
	ResponseChars int64
	InputTokens   int64
	OutputTokens  int64
	DurationMS    *int64
}

// MetadataUpdate is the closed registration payload for one entity.
type MetadataUpdate struct {
	Name             string
	Tags             []string
	ShortDescription string
	FullDescription  string
}

// StatsQuery selects and bounds a flat stats listing.
type StatsQuery struct {
	// IncludeZero keeps entities that have never been invoked.
	IncludeZero bool
	// Limit truncates the listing when positive.
	Limit int
	// KindFilter restricts results to one primitive kind when non-empty.
	KindFilter Kind
}

// StatsRow is one usage record joined with its metadata, plus derived
// per-call averages.
type StatsRow struct {
	Name               string
	Kind               Kind
	CallCount          int64
	LastAccessed       time.Time
	Tags               []string
	ShortDescription   string
	FullDescription    string
	TotalInputTokens   int64
	TotalOutputTokens  int64
	TotalResponseChars int64
	EstimatedTokens    int64
	TotalDurationMS    int64
	MinDurationMS      *int64
	MaxDurationMS      *int64
	// AvgTokensPerCall prefers actual token counts and falls back to the
	// character-based estimate.
	AvgTokensPerCall int64
	// AvgLatencyMS is nil until at least one call supplied a duration.
	AvgLatencyMS *int64
}

// StatsReport is the flat stats listing with aggregate totals.
type StatsReport struct {
	TrackedCount         int
	TotalCalls           int64
	ZeroCount            int
	LatestAccess         time.Time
	TotalInputTokens     int64
	TotalOutputTokens    int64
	TotalEstimatedTokens int64
	TotalDurationMS      int64
	Rows                 []StatsRow
}

// TypeEntry is one usage record inside a per-kind bucket.
type TypeEntry struct {
	Name         string
	Kind         Kind
	CallCount    int64
	LastAccessed time.Time
}

// KindSummary aggregates one primitive kind.
type KindSummary struct {
	Count      int64
	TotalCalls int64
}

// TypeReport groups usage records into fixed per-kind buckets.
type TypeReport struct {
	// ByKind holds a bucket per kind, present even when empty, each ordered
	// by call count descending.
	ByKind     map[Kind][]TypeEntry
	Summary    map[Kind]KindSummary
	TotalCalls int64
	TotalItems int
}

// CatalogQuery filters and bounds the metadata catalog.
type CatalogQuery struct {
	// Tags keeps entries containing every supplied tag.
	Tags []string
	// Query is a case-insensitive substring match over name, tags, and
	// descriptions; whitespace is collapsed before matching.
	Query string
	// IncludeUsage annotates entries with call counts and timestamps.
	IncludeUsage bool
	// Limit truncates matches when positive.
	Limit int
}

// CatalogEntry is one metadata record, optionally annotated with usage.
type CatalogEntry struct {
	Name             string
	Tags             []string
	ShortDescription string
	FullDescription  string
	SchemaVersion    int64
	UpdatedAt        time.Time
	CallCount        int64
	LastAccessed     time.Time
}

// Catalog is the filtered metadata listing.
type Catalog struct {
	TotalTracked int
	Matched      int
	// AllTags holds the distinct tags across every entry, not just matches.
	AllTags    []string
	TotalCalls int64
	Entries    []CatalogEntry
}

// Store persists and aggregates usage analytics.
type Store interface {
	// RecordCall atomically upserts the usage counters for one invocation.
	RecordCall(ctx context.Context, sample CallSample) error
	// AddTokens adds to an entity's cumulative token sums without touching
	// its call count. Unknown names are a silent no-op.
	AddTokens(ctx context.Context, name string, inputTokens, outputTokens int64) error
	// SyncMetadata reconciles stored metadata against the supplied set.
	SyncMetadata(ctx context.Context, entries []MetadataUpdate, cleanupOrphans bool) error
	// UpdateMetadata upserts metadata for a single entity.
	UpdateMetadata(ctx context.Context, entry MetadataUpdate) error
	GetStats(ctx context.Context, query StatsQuery) (StatsReport, error)
	GetByType(ctx context.Context) (TypeReport, error)
	GetCatalog(ctx context.Context, query CatalogQuery) (Catalog, error)
	Close() error
}
