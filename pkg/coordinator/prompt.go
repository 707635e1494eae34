package coordinator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// maxPromptSnippets bounds how many knowledge snippets feed the prompt.
const maxPromptSnippets = 3

// maxSnippetChars truncates each snippet to keep the prompt bounded.
const maxSnippetChars = 800

// systemPrompt renders the agent's persona block.
func systemPrompt(agent models.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", agent.Role)
	fmt.Fprintf(&b, "Your goal: %s\n", agent.Goal)
	if agent.Backstory != "" {
		fmt.Fprintf(&b, "Background: %s\n", agent.Backstory)
	}
	b.WriteString("Answer the user's question directly and cite the provided sources where relevant.")
	return b.String()
}

// userPrompt assembles conversation context, knowledge snippets, and the
// query into the user-role message.
func userPrompt(convContext, extraContext string, results []knowledge.Result, query string) string {
	var b strings.Builder
	if convContext != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(convContext)
		b.WriteString("\n\n")
	}
	if extraContext != "" {
		b.WriteString("Additional context:\n")
		b.WriteString(extraContext)
		b.WriteString("\n\n")
	}
	if block := knowledgeBlock(results); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

func knowledgeBlock(results []knowledge.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant knowledge:\n")
	limit := len(results)
	if limit > maxPromptSnippets {
		limit = maxPromptSnippets
	}
	for i := 0; i < limit; i++ {
		content := truncateRunes(results[i].Content, maxSnippetChars)
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, results[i].Title, content)
	}
	return b.String()
}

// truncateRunes shortens s to at most n runes, never splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// hashQuery is the stable query fingerprint stored on interaction records.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])[:12]
}

// assessQuality scores a response deterministically from routing confidence,
// citation support, and response substance. Ratings arriving later via
// feedback refine the capability averages separately.
func assessQuality(text string, confidence float64, citationCount int) float64 {
	quality := 0.5 + 0.2*confidence
	if citationCount > 0 {
		quality += 0.1
	}
	if len(text) >= 200 {
		quality += 0.1
	}
	return models.Clamp01(quality)
}
