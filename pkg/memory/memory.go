// Package memory provides bounded in-RAM conversation storage with a
// compact context projection for prompt assembly.
//
// Sessions are independent: each one is serialized by its own mutex, so
// concurrent appends to the same session preserve order while other
// sessions make progress.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	// DefaultMaxMessages is the per-session message cap. Oldest messages
	// are evicted once the cap is exceeded.
	DefaultMaxMessages = 10

	// contextWindow is the number of trailing messages included in the
	// context projection.
	contextWindow = 6

	// assistantLineLimit truncates assistant lines in the projection.
	assistantLineLimit = 200
)

// Session is a bounded, addressable conversation.
type Session struct {
	mu sync.Mutex

	ID           string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time

	messages   []models.Message
	agentsUsed map[string]bool

	Escalated    bool
	Satisfaction *int // 1-5, nil until feedback arrives
}

// Summary describes a session without exposing its messages.
type Summary struct {
	MessageCount int
	FirstTs      time.Time
	LastTs       time.Time
}

// Memory stores conversation sessions keyed by id.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxMessages int
	clock       ids.Clock
}

// Option configures Memory.
type Option func(*Memory)

// WithMaxMessages overrides the per-session message cap.
func WithMaxMessages(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.maxMessages = n
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(c ids.Clock) Option {
	return func(m *Memory) { m.clock = c }
}

// New creates an empty conversation memory.
func New(opts ...Option) *Memory {
	m := &Memory{
		sessions:    make(map[string]*Session),
		maxMessages: DefaultMaxMessages,
		clock:       ids.NewMonotonicClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureSession returns the session with the given id, creating it if absent.
func (m *Memory) EnsureSession(sessionID, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	now := m.clock.Now()
	s := &Session{
		ID:           sessionID,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		agentsUsed:   make(map[string]bool),
	}
	m.sessions[sessionID] = s
	return s
}

// Has reports whether a session exists.
func (m *Memory) Has(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// Append adds a message to the session, evicting the oldest message when
// the cap is exceeded. Creates the session if it does not exist.
func (m *Memory) Append(sessionID string, role models.Role, content, agentName string, citations ...models.Citation) {
	s := m.EnsureSession(sessionID, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	// Timestamp under the session lock so per-session order matches time order.
	now := m.clock.Now()
	s.messages = append(s.messages, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
		AgentName: agentName,
		Citations: citations,
	})
	if len(s.messages) > m.maxMessages {
		s.messages = s.messages[len(s.messages)-m.maxMessages:]
	}
	s.LastActivity = now
	if agentName != "" {
		s.agentsUsed[agentName] = true
	}
}

// Context returns the last messages joined as lines for prompt assembly.
// At most contextWindow messages are included; assistant lines are
// truncated to assistantLineLimit characters. Missing sessions yield "".
func (m *Memory) Context(sessionID string) string {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if len(s.messages) > contextWindow {
		start = len(s.messages) - contextWindow
	}

	var b strings.Builder
	for i := start; i < len(s.messages); i++ {
		msg := s.messages[i]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(displayRole(msg.Role))
		if msg.AgentName != "" {
			b.WriteString(" (")
			b.WriteString(msg.AgentName)
			b.WriteString(")")
		}
		b.WriteString(": ")
		content := msg.Content
		if msg.Role == models.RoleAssistant {
			content = truncateRunes(content, assistantLineLimit)
		}
		b.WriteString(content)
	}
	return b.String()
}

// Summary returns message count and first/last timestamps for a session.
func (m *Memory) Summary(sessionID string) (Summary, bool) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{MessageCount: len(s.messages)}
	if len(s.messages) > 0 {
		sum.FirstTs = s.messages[0].Timestamp
		sum.LastTs = s.messages[len(s.messages)-1].Timestamp
	}
	return sum, true
}

// Conversation returns the full message view for a session.
func (m *Memory) Conversation(sessionID string) (*models.Conversation, bool) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	return &models.Conversation{
		SessionID:    s.ID,
		Messages:     msgs,
		AgentsUsed:   s.agentNames(),
		CreatedAt:    s.CreatedAt,
		MessageCount: len(msgs),
	}, true
}

// List returns session summaries ordered by last activity, newest first.
func (m *Memory) List(limit, offset int) []models.SessionSummary {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].lastActivity().After(all[j].lastActivity())
	})

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]models.SessionSummary, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		query := ""
		for _, msg := range s.messages {
			if msg.Role == models.RoleUser {
				query = msg.Content
				break
			}
		}
		out = append(out, models.SessionSummary{
			SessionID:    s.ID,
			UserID:       s.UserID,
			Query:        query,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			MessageCount: len(s.messages),
			AgentsUsed:   s.agentNames(),
		})
		s.mu.Unlock()
	}
	return out
}

// SetSatisfaction records a 1-5 feedback rating on the session.
func (m *Memory) SetSatisfaction(sessionID string, rating int) bool {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.Satisfaction = &rating
	s.mu.Unlock()
	return true
}

// Prune removes sessions idle for longer than olderThan.
// Returns the number of sessions removed.
func (m *Memory) Prune(olderThan time.Duration) int {
	cutoff := m.clock.Now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastActivity().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastActivity
}

// agentNames returns the sorted agents-used set. Caller holds s.mu.
func (s *Session) agentNames() []string {
	names := make([]string, 0, len(s.agentsUsed))
	for name := range s.agentsUsed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// truncateRunes shortens s to at most n runes, never splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func displayRole(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	}
	return string(r)
}
