// Package tags normalizes entity tags and derives short descriptions.
// All functions are pure and safe for concurrent use.
package tags

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxShortDescription bounds ShortDescription output.
const maxShortDescription = 160

// stopwords are filtered from auto-generated tags.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "get": {}, "has": {}, "have": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "will": {},
	"with": {},
}

// Normalize trims, lowercases, collapses whitespace, and deduplicates tags,
// preserving first-occurrence order. Empty values are dropped. When
// filterStopwords is set, common stopwords are removed unless the tag
// contains an underscore (so snake_case names survive).
func Normalize(values []string, filterStopwords bool) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))

	for _, value := range values {
		normalized := strings.Join(strings.Fields(strings.ToLower(value)), " ")
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		if filterStopwords && !strings.Contains(normalized, "_") {
			if _, stop := stopwords[normalized]; stop {
				continue
			}
		}
		result = append(result, normalized)
		seen[normalized] = struct{}{}
	}

	return result
}

// Join serializes tags as a comma-separated string for storage.
// The round trip through Parse is lossless as long as no tag contains a comma.
func Join(values []string) string {
	return strings.Join(values, ",")
}

// Parse splits a stored comma-separated tag string, dropping empties.
func Parse(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// ShortDescription extracts the first sentence of description, truncated to
// 160 characters. When description is empty it humanizes fallbackName
// instead ("my_cool_tool" becomes "My cool tool").
func ShortDescription(description, fallbackName string) string {
	collapsed := strings.Join(strings.Fields(description), " ")

	if collapsed != "" {
		for _, delimiter := range []string{". ", "! ", "? "} {
			if idx := strings.Index(collapsed, delimiter); idx != -1 {
				collapsed = collapsed[:idx+1]
				break
			}
		}
		if utf8.RuneCountInString(collapsed) > maxShortDescription {
			runes := []rune(collapsed)
			return strings.TrimRight(string(runes[:maxShortDescription-3]), " ") + "..."
		}
		return collapsed
	}

	readable := strings.ReplaceAll(fallbackName, "_", " ")
	readable = strings.ReplaceAll(readable, "-", " ")
	readable = strings.TrimSpace(strings.ToLower(readable))
	if readable == "" {
		return "No description available."
	}
	first, size := utf8.DecodeRuneInString(readable)
	return string(unicode.ToUpper(first)) + readable[size:]
}
