// Package report renders usage analytics as markdown, suitable for prompt
// responses and periodic summaries.
package report

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
)

// topEntries caps the most-used listing per kind.
const topEntries = 5

// Source supplies the grouped usage data a report is built from.
type Source interface {
	GetByType(ctx context.Context) (storage.TypeReport, error)
}

// Options shape a report.
type Options struct {
	// Period is a free-form label such as "week" or "month".
	Period string
	// Kind restricts the report to one primitive kind when non-empty.
	Kind storage.Kind
	// IncludeRecommendations appends cleanup suggestions for unused entries.
	IncludeRecommendations bool
}

// Generate renders a markdown usage report from src.
func Generate(ctx context.Context, src Source, opts Options) (string, error) {
	data, err := src.GetByType(ctx)
	if err != nil {
		return "", fmt.Errorf("generate usage report: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Usage Report\n\n")
	fmt.Fprintf(&b, "%d tracked items, %d total calls.\n", data.TotalItems, data.TotalCalls)

	for _, kind := range storage.Kinds() {
		if opts.Kind != "" && kind != opts.Kind {
			continue
		}
		entries := data.ByKind[kind]
		summary := data.Summary[kind]

		fmt.Fprintf(&b, "\n## %ss\n\n", capitalize(string(kind)))
		if len(entries) == 0 {
			b.WriteString("No usage recorded.\n")
			continue
		}
		fmt.Fprintf(&b, "%d items, %d calls.\n\n", summary.Count, summary.TotalCalls)

		b.WriteString("Most used:\n")
		var unused []string
		listed := 0
		for _, entry := range entries {
			if entry.CallCount == 0 {
				unused = append(unused, entry.Name)
				continue
			}
			if listed < topEntries {
				fmt.Fprintf(&b, "- %s: %d calls, last %s\n",
					entry.Name, entry.CallCount, entry.LastAccessed.Format("2006-01-02"))
				listed++
			}
		}
		if listed == 0 {
			b.WriteString("- none\n")
		}

		if len(unused) > 0 {
			b.WriteString("\nNever called:\n")
			for _, name := range unused {
				fmt.Fprintf(&b, "- %s\n", name)
			}
			if opts.IncludeRecommendations {
				fmt.Fprintf(&b, "\nConsider retiring or re-describing the %d unused %s(s) above.\n",
					len(unused), kind)
			}
		}
	}

	if opts.Period != "" {
		fmt.Fprintf(&b, "\n_Period: %s_\n", opts.Period)
	}
	return b.String(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + s[size:]
}
