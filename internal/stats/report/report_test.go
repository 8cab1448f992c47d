package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
)

type fixedSource struct {
	report storage.TypeReport
	err    error
}

func (s fixedSource) GetByType(ctx context.Context) (storage.TypeReport, error) {
	return s.report, s.err
}

func sampleReport() storage.TypeReport {
	accessed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return storage.TypeReport{
		ByKind: map[storage.Kind][]storage.TypeEntry{
			storage.KindTool: {
				{Name: "forecast", Kind: storage.KindTool, CallCount: 9, LastAccessed: accessed},
				{Name: "radar", Kind: storage.KindTool, CallCount: 2, LastAccessed: accessed},
				{Name: "legacy_export", Kind: storage.KindTool, CallCount: 0},
			},
			storage.KindResource: {},
			storage.KindPrompt:   {},
		},
		Summary: map[storage.Kind]storage.KindSummary{
			storage.KindTool: {Count: 3, TotalCalls: 11},
		},
		TotalCalls: 11,
		TotalItems: 3,
	}
}

func TestGenerateRendersSections(t *testing.T) {
	t.Parallel()

	out, err := Generate(context.Background(), fixedSource{report: sampleReport()}, Options{Period: "week"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, want := range []string{
		"# Usage Report",
		"3 tracked items, 11 total calls.",
		"## Tools",
		"- forecast: 9 calls, last 2026-03-01",
		"Never called:",
		"- legacy_export",
		"## Resources",
		"No usage recorded.",
		"_Period: week_",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Consider retiring") {
		t.Error("report contains recommendations without opting in")
	}
}

func TestGenerateRecommendations(t *testing.T) {
	t.Parallel()

	out, err := Generate(context.Background(), fixedSource{report: sampleReport()}, Options{IncludeRecommendations: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(out, "Consider retiring or re-describing the 1 unused tool(s)") {
		t.Errorf("report missing recommendation:\n%s", out)
	}
}

func TestGenerateKindFilter(t *testing.T) {
	t.Parallel()

	out, err := Generate(context.Background(), fixedSource{report: sampleReport()}, Options{Kind: storage.KindPrompt})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(out, "## Tools") {
		t.Errorf("filtered report still contains tools section:\n%s", out)
	}
	if !strings.Contains(out, "## Prompts") {
		t.Errorf("filtered report missing prompts section:\n%s", out)
	}
}

func TestGeneratePropagatesErrors(t *testing.T) {
	t.Parallel()

	src := fixedSource{err: errors.New("storage offline")}
	if _, err := Generate(context.Background(), src, Options{}); err == nil {
		t.Fatal("Generate() error = nil, want propagated error")
	}
}
