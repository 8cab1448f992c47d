package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
)

// StatsInput selects the flat usage listing.
type StatsInput struct {
	IncludeZeroUsage *bool  `json:"include_zero_usage,omitempty" jsonschema:"include entities that were never called (default true)"`
	TypeFilter       string `json:"type_filter,omitempty" jsonschema:"restrict to one kind (tool, prompt, resource)"`
	Limit            int    `json:"limit,omitempty" jsonschema:"maximum number of rows to return"`
}

// StatsEntry is one row of the stats listing.
type StatsEntry struct {
	Name             string   `json:"name"`
	Kind             string   `json:"kind"`
	CallCount        int64    `json:"call_count"`
	LastAccessed     string   `json:"last_accessed,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	InputTokens      int64    `json:"input_tokens"`
	OutputTokens     int64    `json:"output_tokens"`
	EstimatedTokens  int64    `json:"estimated_tokens"`
	AvgTokensPerCall int64    `json:"avg_tokens_per_call"`
	AvgLatencyMS     *int64   `json:"avg_latency_ms,omitempty"`
}

// StatsResult is the stats tool output.
type StatsResult struct {
	TrackedCount    int          `json:"tracked_count"`
	TotalCalls      int64        `json:"total_calls"`
	ZeroCount       int          `json:"zero_count"`
	LatestAccess    string       `json:"latest_access,omitempty"`
	TotalInput      int64        `json:"total_input_tokens"`
	TotalOutput     int64        `json:"total_output_tokens"`
	TotalEstimated  int64        `json:"total_estimated_tokens"`
	TotalDurationMS int64        `json:"total_duration_ms"`
	Entries         []StatsEntry `json:"entries"`
}

// CatalogInput filters the metadata catalog.
type CatalogInput struct {
	Tags         []string `json:"tags,omitempty" jsonschema:"require every listed tag"`
	Query        string   `json:"query,omitempty" jsonschema:"case-insensitive text match over names, tags, and descriptions"`
	IncludeUsage bool     `json:"include_usage,omitempty" jsonschema:"annotate entries with call counts"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of entries to return"`
}

// CatalogItem is one catalog entry.
type CatalogItem struct {
	Name             string   `json:"name"`
	Tags             []string `json:"tags,omitempty"`
	ShortDescription string   `json:"short_description,omitempty"`
	CallCount        int64    `json:"call_count,omitempty"`
	LastAccessed     string   `json:"last_accessed,omitempty"`
}

// CatalogResult is the catalog tool output.
type CatalogResult struct {
	TotalTracked int           `json:"total_tracked"`
	Matched      int           `json:"matched"`
	AllTags      []string      `json:"all_tags,omitempty"`
	TotalCalls   int64         `json:"total_calls,omitempty"`
	Entries      []CatalogItem `json:"entries"`
}

func statsTool(prefix string) *mcp.Tool {
	return &mcp.Tool{
		Name:        prefix + "_tool_usage_stats",
		Description: "Returns usage statistics for every tracked tool, prompt, and resource.",
	}
}

func (s *Server) statsHandler(toolName string) mcp.ToolHandlerFor[StatsInput, StatsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, StatsResult, error) {
		query := storage.StatsQuery{
			IncludeZero: true,
			Limit:       input.Limit,
			KindFilter:  storage.Kind(input.TypeFilter),
		}
		if input.IncludeZeroUsage != nil {
			query.IncludeZero = *input.IncludeZeroUsage
		}

		var result StatsResult
		err := s.tracker.Measure(ctx, toolName, storage.KindTool, func(ctx context.Context) (int64, error) {
			report, err := s.tracker.GetStats(ctx, query)
			if err != nil {
				return 0, err
			}
			result = statsResultFrom(report)
			return encodedLen(result), nil
		})
		if err != nil {
			return nil, StatsResult{}, err
		}
		return nil, result, nil
	}
}

func catalogTool(prefix string) *mcp.Tool {
	return &mcp.Tool{
		Name:        prefix + "_tool_catalog",
		Description: "Returns the tagged catalog of tracked tools, prompts, and resources.",
	}
}

func (s *Server) catalogHandler(toolName string) mcp.ToolHandlerFor[CatalogInput, CatalogResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CatalogInput) (*mcp.CallToolResult, CatalogResult, error) {
		query := storage.CatalogQuery{
			Tags:         input.Tags,
			Query:        input.Query,
			IncludeUsage: input.IncludeUsage,
			Limit:        input.Limit,
		}

		var result CatalogResult
		err := s.tracker.Measure(ctx, toolName, storage.KindTool, func(ctx context.Context) (int64, error) {
			catalog, err := s.tracker.GetCatalog(ctx, query)
			if err != nil {
				return 0, err
			}
			result = catalogResultFrom(catalog)
			return encodedLen(result), nil
		})
		if err != nil {
			return nil, CatalogResult{}, err
		}
		return nil, result, nil
	}
}

func statsResultFrom(report storage.StatsReport) StatsResult {
	result := StatsResult{
		TrackedCount:    report.TrackedCount,
		TotalCalls:      report.TotalCalls,
		ZeroCount:       report.ZeroCount,
		TotalInput:      report.TotalInputTokens,
		TotalOutput:     report.TotalOutputTokens,
		TotalEstimated:  report.TotalEstimatedTokens,
		TotalDurationMS: report.TotalDurationMS,
		Entries:         make([]StatsEntry, 0, len(report.Rows)),
	}
	if !report.LatestAccess.IsZero() {
		result.LatestAccess = report.LatestAccess.Format(time.RFC3339)
	}
	for _, row := range report.Rows {
		entry := StatsEntry{
			Name:             row.Name,
			Kind:             string(row.Kind),
			CallCount:        row.CallCount,
			Tags:             row.Tags,
			ShortDescription: row.ShortDescription,
			InputTokens:      row.TotalInputTokens,
			OutputTokens:     row.TotalOutputTokens,
			EstimatedTokens:  row.EstimatedTokens,
			AvgTokensPerCall: row.AvgTokensPerCall,
			AvgLatencyMS:     row.AvgLatencyMS,
		}
		if !row.LastAccessed.IsZero() {
			entry.LastAccessed = row.LastAccessed.Format(time.RFC3339)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

func catalogResultFrom(catalog storage.Catalog) CatalogResult {
	result := CatalogResult{
		TotalTracked: catalog.TotalTracked,
		Matched:      catalog.Matched,
		AllTags:      catalog.AllTags,
		TotalCalls:   catalog.TotalCalls,
		Entries:      make([]CatalogItem, 0, len(catalog.Entries)),
	}
	for _, entry := range catalog.Entries {
		item := CatalogItem{
			Name:             entry.Name,
			Tags:             entry.Tags,
			ShortDescription: entry.ShortDescription,
			CallCount:        entry.CallCount,
		}
		if !entry.LastAccessed.IsZero() {
			item.LastAccessed = entry.LastAccessed.Format(time.RFC3339)
		}
		result.Entries = append(result.Entries, item)
	}
	return result
}

// encodedLen sizes a result the same way a client receives it, so recorded
// response characters reflect the wire payload.
func encodedLen(v any) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
