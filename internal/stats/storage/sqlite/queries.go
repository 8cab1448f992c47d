package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
	"github.com/louisbranch/mcpstat/internal/stats/tags"
)

// GetStats returns the flat stats listing, ordered by call count and recency,
// with per-row averages and aggregate totals.
func (s *Store) GetStats(ctx context.Context, query storage.StatsQuery) (storage.StatsReport, error) {
	if err := ctx.Err(); err != nil {
		return storage.StatsReport{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.StatsReport{}, fmt.Errorf("storage is not configured")
	}

	var conditions []string
	var params []any
	if query.KindFilter != "" {
		conditions = append(conditions, "u.kind = ?")
		params = append(params, string(query.KindFilter))
	}
	if !query.IncludeZero {
		conditions = append(conditions, "u.call_count > 0")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	stmt := `SELECT u.name, u.kind, u.call_count, u.last_accessed,
	                u.total_input_tokens, u.total_output_tokens,
	                u.total_response_chars, u.estimated_tokens,
	                u.total_duration_ms, u.min_duration_ms, u.max_duration_ms,
	                m.tags, m.short_description, m.full_description
	           FROM mcpstat_usage u
	           LEFT JOIN mcpstat_metadata m ON u.name = m.name
	           ` + where + `
	          ORDER BY u.call_count DESC, u.last_accessed DESC`
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		params = append(params, query.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.sqlDB.QueryContext(ctx, stmt, params...)
	if err != nil {
		return storage.StatsReport{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	report := storage.StatsReport{}
	for rows.Next() {
		var row storage.StatsRow
		var kind string
		var lastAccessed string
		var minDuration, maxDuration sql.NullInt64
		var tagsValue, shortDescription, fullDescription sql.NullString
		if err := rows.Scan(
			&row.Name, &kind, &row.CallCount, &lastAccessed,
			&row.TotalInputTokens, &row.TotalOutputTokens,
			&row.TotalResponseChars, &row.EstimatedTokens,
			&row.TotalDurationMS, &minDuration, &maxDuration,
			&tagsValue, &shortDescription, &fullDescription,
		); err != nil {
			return storage.StatsReport{}, fmt.Errorf("scan stats row: %w", err)
		}
		row.Kind = storage.Kind(kind)
		row.LastAccessed = parseTime(lastAccessed)
		row.Tags = tags.Parse(tagsValue.String)
		row.ShortDescription = shortDescription.String
		row.FullDescription = fullDescription.String
		if minDuration.Valid {
			value := minDuration.Int64
			row.MinDurationMS = &value
		}
		if maxDuration.Valid {
			value := maxDuration.Int64
			row.MaxDurationMS = &value
		}
		if row.CallCount > 0 {
			if actual := row.TotalInputTokens + row.TotalOutputTokens; actual > 0 {
				row.AvgTokensPerCall = actual / row.CallCount
			} else {
				row.AvgTokensPerCall = row.EstimatedTokens / row.CallCount
			}
			if row.MinDurationMS != nil {
				avg := row.TotalDurationMS / row.CallCount
				row.AvgLatencyMS = &avg
			}
		}

		report.TotalCalls += row.CallCount
		if row.CallCount == 0 {
			report.ZeroCount++
		}
		if row.LastAccessed.After(report.LatestAccess) {
			report.LatestAccess = row.LastAccessed
		}
		report.TotalInputTokens += row.TotalInputTokens
		report.TotalOutputTokens += row.TotalOutputTokens
		report.TotalEstimatedTokens += row.EstimatedTokens
		report.TotalDurationMS += row.TotalDurationMS
		report.Rows = append(report.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return storage.StatsReport{}, fmt.Errorf("query stats: %w", err)
	}
	report.TrackedCount = len(report.Rows)
	return report, nil
}

// GetByType groups usage records into fixed per-kind buckets with per-kind
// summaries. Every kind bucket is present even when empty.
func (s *Store) GetByType(ctx context.Context) (storage.TypeReport, error) {
	if err := ctx.Err(); err != nil {
		return storage.TypeReport{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TypeReport{}, fmt.Errorf("storage is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT name, kind, call_count, last_accessed
		   FROM mcpstat_usage
		  ORDER BY call_count DESC`,
	)
	if err != nil {
		return storage.TypeReport{}, fmt.Errorf("query usage by type: %w", err)
	}
	defer rows.Close()

	report := storage.TypeReport{
		ByKind:  make(map[storage.Kind][]storage.TypeEntry),
		Summary: make(map[storage.Kind]storage.KindSummary),
	}
	for _, kind := range storage.Kinds() {
		report.ByKind[kind] = []storage.TypeEntry{}
	}

	for rows.Next() {
		var entry storage.TypeEntry
		var kind string
		var lastAccessed string
		if err := rows.Scan(&entry.Name, &kind, &entry.CallCount, &lastAccessed); err != nil {
			return storage.TypeReport{}, fmt.Errorf("scan usage row: %w", err)
		}
		entry.Kind = storage.Kind(kind)
		entry.LastAccessed = parseTime(lastAccessed)

		report.ByKind[entry.Kind] = append(report.ByKind[entry.Kind], entry)
		summary := report.Summary[entry.Kind]
		summary.Count++
		summary.TotalCalls += entry.CallCount
		report.Summary[entry.Kind] = summary
		report.TotalCalls += entry.CallCount
		report.TotalItems++
	}
	if err := rows.Err(); err != nil {
		return storage.TypeReport{}, fmt.Errorf("query usage by type: %w", err)
	}
	return report, nil
}

// GetCatalog returns the metadata catalog filtered by tags and text. Tag
// filtering requires every supplied tag (AND semantics). Matches are ordered
// by call count, then recency, then name, via three stable sort passes.
func (s *Store) GetCatalog(ctx context.Context, query storage.CatalogQuery) (storage.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return storage.Catalog{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Catalog{}, fmt.Errorf("storage is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT m.name, m.tags, m.short_description, m.full_description,
		        m.schema_version, m.updated_at,
		        u.call_count, u.last_accessed
		   FROM mcpstat_metadata m
		   LEFT JOIN mcpstat_usage u ON m.name = u.name`,
	)
	if err != nil {
		return storage.Catalog{}, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	tagFilters := tags.Normalize(query.Tags, false)
	queryText := strings.ToLower(strings.Join(strings.Fields(query.Query), " "))

	catalog := storage.Catalog{}
	allTags := make(map[string]struct{})

	for rows.Next() {
		var entry storage.CatalogEntry
		var tagsValue, fullDescription sql.NullString
		var updatedAt string
		var callCount sql.NullInt64
		var lastAccessed sql.NullString
		if err := rows.Scan(
			&entry.Name, &tagsValue, &entry.ShortDescription, &fullDescription,
			&entry.SchemaVersion, &updatedAt,
			&callCount, &lastAccessed,
		); err != nil {
			return storage.Catalog{}, fmt.Errorf("scan catalog row: %w", err)
		}
		entry.Tags = tags.Parse(tagsValue.String)
		entry.FullDescription = fullDescription.String
		entry.UpdatedAt = parseTime(updatedAt)
		if query.IncludeUsage {
			entry.CallCount = callCount.Int64
			entry.LastAccessed = parseTime(lastAccessed.String)
		}

		catalog.TotalTracked++
		catalog.TotalCalls += callCount.Int64
		for _, tag := range entry.Tags {
			allTags[tag] = struct{}{}
		}

		if !matchesTags(entry.Tags, tagFilters) {
			continue
		}
		if queryText != "" && !matchesText(entry, queryText) {
			continue
		}
		catalog.Entries = append(catalog.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return storage.Catalog{}, fmt.Errorf("query catalog: %w", err)
	}

	// Three stable passes: the final order is primarily call count, with
	// recency and then name as tie-breakers.
	sort.SliceStable(catalog.Entries, func(i, j int) bool {
		return catalog.Entries[i].Name < catalog.Entries[j].Name
	})
	sort.SliceStable(catalog.Entries, func(i, j int) bool {
		return catalog.Entries[i].LastAccessed.After(catalog.Entries[j].LastAccessed)
	})
	sort.SliceStable(catalog.Entries, func(i, j int) bool {
		return catalog.Entries[i].CallCount > catalog.Entries[j].CallCount
	})

	if query.Limit > 0 && len(catalog.Entries) > query.Limit {
		catalog.Entries = catalog.Entries[:query.Limit]
	}
	catalog.Matched = len(catalog.Entries)
	if !query.IncludeUsage {
		catalog.TotalCalls = 0
	}

	catalog.AllTags = make([]string, 0, len(allTags))
	for tag := range allTags {
		catalog.AllTags = append(catalog.AllTags, tag)
	}
	sort.Strings(catalog.AllTags)

	return catalog, nil
}

func matchesTags(entryTags, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(entryTags))
	for _, tag := range entryTags {
		set[tag] = struct{}{}
	}
	for _, filter := range filters {
		if _, ok := set[filter]; !ok {
			return false
		}
	}
	return true
}

func matchesText(entry storage.CatalogEntry, queryText string) bool {
	haystack := strings.ToLower(strings.Join([]string{
		entry.Name,
		strings.Join(entry.Tags, " "),
		entry.ShortDescription,
		entry.FullDescription,
	}, " "))
	return strings.Contains(haystack, queryText)
}
