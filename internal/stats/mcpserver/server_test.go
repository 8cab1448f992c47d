package mcpserver

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
	"github.com/louisbranch/mcpstat/internal/stats/tracker"
)

func newTestServer(t *testing.T) (*Server, *tracker.Tracker) {
	t.Helper()
	dir := t.TempDir()
	tr, err := tracker.New(tracker.Config{
		ServerName: "analytics-test",
		DBPath:     filepath.Join(dir, "usage.sqlite"),
		LogPath:    filepath.Join(dir, "usage.log"),
	})
	if err != nil {
		t.Fatalf("tracker.New() error = %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	s, err := New(tr, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, tr
}

func TestNewRequiresTracker(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestStatsHandlerReturnsUsage(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer(t)
	ctx := context.Background()

	tr.Record(ctx, tracker.Call{Name: "forecast", Kind: storage.KindTool, Success: true, ResponseChars: 700})
	tr.Record(ctx, tracker.Call{Name: "forecast", Kind: storage.KindTool, Success: true, ResponseChars: 300})

	handler := s.statsHandler("get_tool_usage_stats")
	_, result, err := handler(ctx, nil, StatsInput{})
	if err != nil {
		t.Fatalf("stats handler error = %v", err)
	}
	if result.TotalCalls != 2 {
		t.Fatalf("TotalCalls = %d, want 2", result.TotalCalls)
	}
	if len(result.Entries) != 1 || result.Entries[0].Name != "forecast" {
		t.Fatalf("entries = %+v, want forecast", result.Entries)
	}
	if result.Entries[0].EstimatedTokens != 285 {
		t.Errorf("EstimatedTokens = %d, want 285", result.Entries[0].EstimatedTokens)
	}
}

func TestStatsHandlerRecordsItself(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer(t)
	ctx := context.Background()

	handler := s.statsHandler("get_tool_usage_stats")
	if _, _, err := handler(ctx, nil, StatsInput{}); err != nil {
		t.Fatalf("stats handler error = %v", err)
	}

	report, err := tr.GetStats(ctx, storage.StatsQuery{IncludeZero: true})
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	found := false
	for _, row := range report.Rows {
		if row.Name == "get_tool_usage_stats" && row.CallCount == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("rows = %+v, want the stats tool's own invocation recorded", report.Rows)
	}
}

func TestStatsHandlerFilters(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer(t)
	ctx := context.Background()

	tr.Record(ctx, tracker.Call{Name: "forecast", Kind: storage.KindTool, Success: true})
	tr.Record(ctx, tracker.Call{Name: "greeting", Kind: storage.KindPrompt, Success: true})

	handler := s.statsHandler("get_tool_usage_stats")
	_, result, err := handler(ctx, nil, StatsInput{TypeFilter: "prompt"})
	if err != nil {
		t.Fatalf("stats handler error = %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Name != "greeting" {
		t.Fatalf("entries = %+v, want only greeting", result.Entries)
	}
}

func TestCatalogHandlerFiltersByTag(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer(t)
	ctx := context.Background()

	regs := []tracker.Registration{
		{Name: "forecast", Tags: []string{"weather"}, Description: "Weather forecast."},
		{Name: "translate", Tags: []string{"language"}, Description: "Translation."},
	}
	if err := tr.SyncTools(ctx, regs); err != nil {
		t.Fatalf("SyncTools() error = %v", err)
	}

	handler := s.catalogHandler("get_tool_catalog")
	_, result, err := handler(ctx, nil, CatalogInput{Tags: []string{"weather"}})
	if err != nil {
		t.Fatalf("catalog handler error = %v", err)
	}
	if result.Matched != 1 || result.Entries[0].Name != "forecast" {
		t.Fatalf("entries = %+v, want only forecast", result.Entries)
	}
	if result.TotalTracked != 2 {
		t.Errorf("TotalTracked = %d, want 2", result.TotalTracked)
	}
}

func TestReportPromptRendersMarkdown(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer(t)
	ctx := context.Background()

	tr.Record(ctx, tracker.Call{Name: "forecast", Kind: storage.KindTool, Success: true})

	handler := s.reportPromptHandler("usage_stats")
	result, err := handler(ctx, &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{
			Arguments: map[string]string{"period": "week"},
		},
	})
	if err != nil {
		t.Fatalf("prompt handler error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(result.Messages))
	}
	content, ok := result.Messages[0].Content.(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want *mcp.TextContent", result.Messages[0].Content)
	}
	for _, want := range []string{"# Usage Report", "forecast", "_Period: week_"} {
		if !strings.Contains(content.Text, want) {
			t.Errorf("report missing %q:\n%s", want, content.Text)
		}
	}
}

func TestSyncOwnMetadata(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer(t)
	ctx := context.Background()

	if err := s.syncOwnMetadata(ctx); err != nil {
		t.Fatalf("syncOwnMetadata() error = %v", err)
	}

	catalog, err := tr.GetCatalog(ctx, storage.CatalogQuery{Tags: []string{"analytics"}})
	if err != nil {
		t.Fatalf("GetCatalog() error = %v", err)
	}
	if catalog.Matched != 3 {
		t.Fatalf("Matched = %d, want the two tools and the prompt", catalog.Matched)
	}
}
