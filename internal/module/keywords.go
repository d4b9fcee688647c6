package module

import (
	"sort"
	"strings"
	"unicode"
)

const (
	maxTitleLen   = 80
	maxSummaryLen = 200
	maxKeywords   = 8
	minKeywordLen = 3
)

// stopwords are excluded from keyword extraction. The list is short on
// purpose; frequency ranking handles the rest.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"has": true, "have": true, "was": true, "were": true, "with": true,
	"this": true, "that": true, "they": true, "them": true, "then": true,
	"from": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"about": true, "into": true, "more": true, "some": true, "been": true,
	"also": true, "just": true, "its": true, "our": true, "out": true,
	"she": true, "his": true, "her": true, "him": true, "how": true,
}

// extractTitle returns the first non-empty line, truncated at a word
// boundary.
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#- "))
		if line == "" {
			continue
		}
		return truncateAtWord(line, maxTitleLen)
	}
	return ""
}

// extractSummary returns the leading prose of the content.
func extractSummary(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	return truncateAtWord(collapsed, maxSummaryLen)
}

// extractKeywords returns the most frequent non-stopword terms, most
// frequent first, ties broken alphabetically for stable output.
func extractKeywords(content string) []string {
	freq := make(map[string]int)

	for _, tok := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(tok) < minKeywordLen || stopwords[tok] {
			continue
		}
		freq[tok]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}

// truncateAtWord shortens s to at most max runes without splitting a word.
func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
