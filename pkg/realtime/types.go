// Package realtime maintains a live view of every active execution and
// broadcasts state changes to subscribers with bounded, drop-oldest fan-out.
package realtime

import (
	"time"
)

// Phase is the session-level lifecycle state.
type Phase string

const (
	PhaseQueued        Phase = "queued"
	PhaseAnalyzing     Phase = "analyzing"
	PhaseProcessing    Phase = "processing"
	PhaseCollaborating Phase = "collaborating"
	PhaseFinishing     Phase = "finishing"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// Terminal reports whether the phase ends the session.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// phaseTransitions holds the allowed forward edges. failed is reachable
// from any non-terminal phase and is handled separately.
var phaseTransitions = map[Phase][]Phase{
	PhaseQueued:        {PhaseAnalyzing},
	PhaseAnalyzing:     {PhaseProcessing},
	PhaseProcessing:    {PhaseCollaborating, PhaseFinishing},
	PhaseCollaborating: {PhaseProcessing, PhaseFinishing},
	PhaseFinishing:     {PhaseDone},
}

// validPhaseTransition reports whether from → to is allowed.
func validPhaseTransition(from, to Phase) bool {
	if to == PhaseFailed {
		return !from.Terminal()
	}
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// phaseProgress is the overall-progress baseline per phase.
var phaseProgress = map[Phase]int{
	PhaseQueued:        0,
	PhaseAnalyzing:     15,
	PhaseProcessing:    40,
	PhaseCollaborating: 60,
	PhaseFinishing:     85,
	PhaseDone:          100,
}

// AgentStatus is the per-agent lifecycle state within a session.
type AgentStatus string

const (
	AgentIdle          AgentStatus = "idle"
	AgentAnalyzing     AgentStatus = "analyzing"
	AgentProcessing    AgentStatus = "processing"
	AgentCollaborating AgentStatus = "collaborating"
	AgentCompleted     AgentStatus = "completed"
	AgentError         AgentStatus = "error"
)

// Terminal reports whether the status ends the agent's participation.
func (s AgentStatus) Terminal() bool { return s == AgentCompleted || s == AgentError }

var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentIdle:          {AgentAnalyzing},
	AgentAnalyzing:     {AgentProcessing},
	AgentProcessing:    {AgentCollaborating, AgentCompleted},
	AgentCollaborating: {AgentProcessing, AgentCompleted},
}

func validAgentTransition(from, to AgentStatus) bool {
	if to == AgentError {
		return !from.Terminal()
	}
	for _, next := range agentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Event types broadcast to subscribers.
const (
	EventSessionOpened = "session_opened"
	EventSessionPhase  = "session_phase"
	EventAgentStatus   = "agent_status"
	EventCollaboration = "agent_collaboration"
	EventLog           = "log"
	EventSessionClosed = "session_closed"
	EventHeartbeat     = "heartbeat"
	// EventLagged tells a slow subscriber that events were dropped from
	// its queue and it should resync via Snapshot.
	EventLagged = "lagged"
)

// Event is one broadcast state change. Seq is strictly increasing per
// session; heartbeat and lagged markers carry Seq 0 and no session.
type Event struct {
	Seq       int64     `json:"seq,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// SessionOpenedPayload announces a new tracked session.
type SessionOpenedPayload struct {
	Query  string   `json:"query"`
	Agents []string `json:"agents"`
}

// PhasePayload carries a session phase transition.
type PhasePayload struct {
	Phase    Phase `json:"phase"`
	Progress int   `json:"progress"`
}

// AgentStatusPayload carries a per-agent transition.
type AgentStatusPayload struct {
	AgentID  string      `json:"agent_id"`
	Status   AgentStatus `json:"status"`
	Progress int         `json:"progress"`
	Message  string      `json:"message,omitempty"`
}

// CollaborationPayload records one agent consulting another.
type CollaborationPayload struct {
	PrimaryAgentID   string `json:"primary_agent_id"`
	SecondaryAgentID string `json:"secondary_agent_id"`
	Type             string `json:"type"`
	Reason           string `json:"reason,omitempty"`
}

// LogPayload is a structured log line scoped to a session.
type LogPayload struct {
	Level   string         `json:"level"`
	AgentID string         `json:"agent_id,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SessionClosedPayload is the terminal event for a session.
type SessionClosedPayload struct {
	Outcome   Phase  `json:"outcome"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// AgentState is the live view of one agent within a session.
type AgentState struct {
	AgentID     string      `json:"agent_id"`
	Status      AgentStatus `json:"status"`
	Progress    int         `json:"progress"`
	CurrentTask string      `json:"current_task,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SessionState is a point-in-time snapshot of one tracked session.
type SessionState struct {
	SessionID           string       `json:"session_id"`
	Query               string       `json:"query"`
	Phase               Phase        `json:"phase"`
	Progress            int          `json:"progress"`
	StartedAt           time.Time    `json:"started_at"`
	EstimatedCompletion time.Time    `json:"estimated_completion,omitempty"`
	Agents              []AgentState `json:"agents"`
	Events              []Event      `json:"events"`
	LastSeq             int64        `json:"last_seq"`
	ErrorKind           string       `json:"error_kind,omitempty"`
}
