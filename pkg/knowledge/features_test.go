package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Features
	}{
		{
			name:  "temporal term",
			query: "What is the latest pricing?",
			want:  Features{Temporal: true},
		},
		{
			name:  "year token counts as temporal",
			query: "roadmap for 2026",
			want:  Features{Temporal: true},
		},
		{
			name:  "technical query",
			query: "How do I configure the webhook API?",
			want:  Features{Technical: true},
		},
		{
			name:  "specific how-to",
			query: "step by step guide for onboarding",
			want:  Features{Specific: true},
		},
		{
			name:  "comparison",
			query: "plan A versus plan B",
			want:  Features{Comparison: true},
		},
		{
			name:  "case insensitive",
			query: "LATEST API changes",
			want:  Features{Temporal: true, Technical: true},
		},
		{
			name:  "plain query has no features",
			query: "where is my invoice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeQuery(tt.query))
		})
	}
}

func TestFeatureLimits(t *testing.T) {
	assert.Equal(t, 10, Features{Technical: true}.VectorLimit())
	assert.Equal(t, 5, Features{}.VectorLimit())
	assert.Equal(t, 5, Features{Comparison: true}.ScrapeLimit())
	assert.Equal(t, 3, Features{}.ScrapeLimit())
}
