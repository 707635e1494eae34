package memory

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

func TestAppend_EvictsOldestAtCapacity(t *testing.T) {
	m := New(WithMaxMessages(3))

	m.Append("s1", models.RoleUser, "one", "")
	m.Append("s1", models.RoleUser, "two", "")
	m.Append("s1", models.RoleUser, "three", "")
	m.Append("s1", models.RoleUser, "four", "")

	conv, ok := m.Conversation("s1")
	require.True(t, ok)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "two", conv.Messages[0].Content)
	assert.Equal(t, "four", conv.Messages[2].Content)
}

func TestContext_FormatAndWindow(t *testing.T) {
	m := New(WithMaxMessages(20))

	for i := 1; i <= 8; i++ {
		m.Append("s1", models.RoleUser, fmt.Sprintf("question %d", i), "")
	}
	m.Append("s1", models.RoleAssistant, strings.Repeat("x", 300), "Technical Integration Specialist")

	ctx := m.Context("s1")
	lines := strings.Split(ctx, "\n")
	require.Len(t, lines, 6, "context window is 6 messages")

	// Oldest messages fall outside the window
	assert.NotContains(t, ctx, "question 1")
	assert.Contains(t, lines[0], "User: question 4")

	// Assistant line carries the agent name and is truncated to 200 chars
	last := lines[5]
	assert.True(t, strings.HasPrefix(last, "Assistant (Technical Integration Specialist): "))
	content := strings.TrimPrefix(last, "Assistant (Technical Integration Specialist): ")
	assert.Len(t, content, 200)
}

func TestContext_TruncatesOnRuneBoundary(t *testing.T) {
	m := New()

	// 300 two-byte runes; a byte-indexed cut would land mid-rune.
	m.Append("s1", models.RoleAssistant, strings.Repeat("é", 300), "agent")

	ctx := m.Context("s1")
	content := strings.TrimPrefix(ctx, "Assistant (agent): ")
	assert.Equal(t, assistantLineLimit, utf8.RuneCountInString(content))
	assert.True(t, utf8.ValidString(content))
	assert.Equal(t, strings.Repeat("é", assistantLineLimit), content)
}

func TestContext_MissingSessionIsEmpty(t *testing.T) {
	m := New()
	assert.Equal(t, "", m.Context("nope"))
}

func TestContext_ReadsAreNonMutating(t *testing.T) {
	m := New()
	m.Append("s1", models.RoleUser, "a", "")
	first := m.Context("s1")
	second := m.Context("s1")
	assert.Equal(t, first, second)

	m.Append("s1", models.RoleUser, "b", "")
	sum, ok := m.Summary("s1")
	require.True(t, ok)
	assert.Equal(t, 2, sum.MessageCount)
}

func TestSummary_Timestamps(t *testing.T) {
	clock := ids.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := New(WithClock(clock))

	m.Append("s1", models.RoleUser, "a", "")
	clock.Advance(time.Minute)
	m.Append("s1", models.RoleAssistant, "b", "agent")

	sum, ok := m.Summary("s1")
	require.True(t, ok)
	assert.Equal(t, 2, sum.MessageCount)
	assert.True(t, sum.LastTs.After(sum.FirstTs))
}

func TestConcurrentAppends_SameSessionBounded(t *testing.T) {
	m := New(WithMaxMessages(10))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.Append("s1", models.RoleUser, fmt.Sprintf("g%d-%d", g, i), "")
			}
		}(g)
	}
	wg.Wait()

	conv, ok := m.Conversation("s1")
	require.True(t, ok)
	assert.LessOrEqual(t, len(conv.Messages), 10)

	// Timestamps within the surviving window are monotonic
	for i := 1; i < len(conv.Messages); i++ {
		assert.False(t, conv.Messages[i].Timestamp.Before(conv.Messages[i-1].Timestamp))
	}
}

func TestPrune_RemovesIdleSessions(t *testing.T) {
	clock := ids.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := New(WithClock(clock))

	m.Append("old", models.RoleUser, "a", "")
	clock.Advance(2 * time.Hour)
	m.Append("fresh", models.RoleUser, "b", "")

	removed := m.Prune(time.Hour)
	assert.Equal(t, 1, removed)
	assert.False(t, m.Has("old"))
	assert.True(t, m.Has("fresh"))
}

func TestList_OrderAndAgents(t *testing.T) {
	clock := ids.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := New(WithClock(clock))

	m.Append("a", models.RoleUser, "first question", "")
	clock.Advance(time.Minute)
	m.Append("b", models.RoleUser, "second question", "")
	m.Append("b", models.RoleAssistant, "answer", "Billing Specialist")

	list := m.List(10, 0)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].SessionID)
	assert.Equal(t, []string{"Billing Specialist"}, list[0].AgentsUsed)
	assert.Equal(t, "second question", list[0].Query)
}
