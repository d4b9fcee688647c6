package module

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"first line", "Meeting notes\nLong body here", "Meeting notes"},
		{"skips blank lines", "\n\n  \nActual title", "Actual title"},
		{"strips markdown heading", "# Project kickoff\nbody", "Project kickoff"},
		{"empty content", "   \n  ", ""},
		{
			"truncates at word boundary",
			strings.Repeat("word ", 30),
			// 80-rune cut lands mid-word, so the partial word is dropped.
			strings.TrimSpace(strings.Repeat("word ", 16)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTitle(tt.content))
		})
	}
}

func TestExtractSummary(t *testing.T) {
	got := extractSummary("line one\n\nline   two")
	assert.Equal(t, "line one line two", got)

	long := extractSummary(strings.Repeat("sentence ", 100))
	assert.LessOrEqual(t, len(long), maxSummaryLen)
}

func TestExtractKeywords(t *testing.T) {
	content := "kubernetes deployment failed. kubernetes pods restarting. deployment rollback planned for the cluster."

	got := extractKeywords(content)
	assert.NotEmpty(t, got)
	assert.Equal(t, "deployment", got[0])
	assert.Contains(t, got, "kubernetes")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "for")
	assert.LessOrEqual(t, len(got), maxKeywords)
}

func TestExtractKeywordsDeterministic(t *testing.T) {
	content := "alpha beta gamma alpha beta gamma"
	first := extractKeywords(content)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, extractKeywords(content))
	}
}
