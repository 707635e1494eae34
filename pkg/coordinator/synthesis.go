package coordinator

import (
	"fmt"
	"strings"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// mergeOutcomes combines successful agent outputs deterministically:
// sections in selection order, duplicate paragraphs dropped, citations
// reindexed. A single success passes through untouched.
func mergeOutcomes(outcomes []agentOutcome, citations []models.Citation) (string, []models.Citation) {
	reindexed := make([]models.Citation, len(citations))
	for i, c := range citations {
		c.Index = i + 1
		reindexed[i] = c
	}

	if len(outcomes) == 1 {
		return outcomes[0].text, reindexed
	}

	seen := make(map[string]bool)
	var b strings.Builder
	for _, outcome := range outcomes {
		var kept []string
		for _, para := range strings.Split(outcome.text, "\n\n") {
			trimmed := strings.TrimSpace(para)
			if trimmed == "" {
				continue
			}
			fp := paragraphFingerprint(trimmed)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			kept = append(kept, trimmed)
		}
		if len(kept) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**%s:**\n\n%s", outcome.selection.Agent.Role, strings.Join(kept, "\n\n"))
	}
	return b.String(), reindexed
}

// paragraphFingerprint normalizes a paragraph for duplicate detection.
func paragraphFingerprint(para string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(para), " "))
	if len(normalized) > 200 {
		normalized = normalized[:200]
	}
	return normalized
}
