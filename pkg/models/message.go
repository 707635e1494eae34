package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn. Content is never mutated after
// append; alternating roles are not required (tool events may interleave).
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	AgentName string     `json:"agent_name,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// SessionSummary is the compact per-session view returned by list endpoints.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	Query        string    `json:"query,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	AgentsUsed   []string  `json:"agents_used"`
}

// Conversation is the full message view for one session.
type Conversation struct {
	SessionID    string    `json:"session_id"`
	Messages     []Message `json:"messages"`
	AgentsUsed   []string  `json:"agents_used"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}
