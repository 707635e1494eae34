package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	// eventRingCap bounds the per-session event log.
	eventRingCap = 500

	// defaultRetention keeps closed sessions snapshotable before GC.
	defaultRetention = 10 * time.Minute

	// heartbeatInterval is how often each subscriber gets a heartbeat.
	heartbeatInterval = 30 * time.Second

	// subscriberDeadline closes subscriptions that have not acked.
	subscriberDeadline = 90 * time.Second
)

// session is the tracker's mutable state for one execution. Guarded by the
// tracker mutex.
type session struct {
	id         string
	query      string
	phase      Phase
	startedAt  time.Time
	estimated  time.Time
	agents     map[string]*AgentState
	agentOrder []string
	events     []Event
	seq        int64
	closedAt   time.Time // zero while active
	closedKind string
}

// Config tunes the tracker.
type Config struct {
	Retention time.Duration `yaml:"retention"`
}

// Tracker owns the live session views and the subscriber set. All emits are
// non-blocking: slow subscribers lose old events, never stall the tracker.
type Tracker struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	subscribers map[string]*Subscription
	retention   time.Duration
	clock       ids.Clock
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithClock(clock ids.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retention = d }
}

// NewTracker creates a tracker. Call Run to start heartbeats and GC.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		sessions:    make(map[string]*session),
		subscribers: make(map[string]*Subscription),
		retention:   defaultRetention,
		clock:       ids.NewMonotonicClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run drives heartbeats and retention GC until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := t.clock.Now()
			t.heartbeat(now)
			t.sweep(now)
		}
	}
}

// OpenSession starts tracking an execution and emits session_opened.
func (t *Tracker) OpenSession(sessionID, query string, agentIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sessions[sessionID]; exists {
		return models.NewKindError(models.ErrKindInvalidInput,
			"session already tracked: "+sessionID)
	}

	now := t.clock.Now()
	sess := &session{
		id:        sessionID,
		query:     query,
		phase:     PhaseQueued,
		startedAt: now,
		// Rough completion estimate; refined as phases advance.
		estimated:  now.Add(30 * time.Second),
		agents:     make(map[string]*AgentState, len(agentIDs)),
		agentOrder: agentIDs,
	}
	for _, agentID := range agentIDs {
		sess.agents[agentID] = &AgentState{AgentID: agentID, Status: AgentIdle, UpdatedAt: now}
	}
	t.sessions[sessionID] = sess

	t.emitLocked(sess, EventSessionOpened, SessionOpenedPayload{Query: query, Agents: agentIDs})
	return nil
}

// SetPhase transitions the session phase and emits session_phase.
func (t *Tracker) SetPhase(sessionID string, phase Phase) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, err := t.activeLocked(sessionID)
	if err != nil {
		return err
	}
	if !validPhaseTransition(sess.phase, phase) {
		return models.NewKindError(models.ErrKindInternal,
			fmt.Sprintf("invalid phase transition %s -> %s", sess.phase, phase))
	}
	sess.phase = phase
	t.emitLocked(sess, EventSessionPhase, PhasePayload{Phase: phase, Progress: phaseProgress[phase]})
	return nil
}

// SetAgentStatus transitions one agent and emits agent_status.
func (t *Tracker) SetAgentStatus(sessionID, agentID string, status AgentStatus, progress int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, err := t.activeLocked(sessionID)
	if err != nil {
		return err
	}
	state, ok := sess.agents[agentID]
	if !ok {
		return models.NewKindError(models.ErrKindNotFound,
			"agent not tracked in session: "+agentID)
	}
	if state.Status != status && !validAgentTransition(state.Status, status) {
		return models.NewKindError(models.ErrKindInternal,
			fmt.Sprintf("invalid agent transition %s -> %s", state.Status, status))
	}

	now := t.clock.Now()
	state.Status = status
	state.Progress = progress
	state.CurrentTask = message
	state.UpdatedAt = now

	t.emitLocked(sess, EventAgentStatus, AgentStatusPayload{
		AgentID: agentID, Status: status, Progress: progress, Message: message,
	})
	return nil
}

// RecordCollaboration emits agent_collaboration.
func (t *Tracker) RecordCollaboration(sessionID, primaryID, secondaryID, collabType, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, err := t.activeLocked(sessionID)
	if err != nil {
		return err
	}
	t.emitLocked(sess, EventCollaboration, CollaborationPayload{
		PrimaryAgentID: primaryID, SecondaryAgentID: secondaryID,
		Type: collabType, Reason: reason,
	})
	return nil
}

// AppendLog appends a structured log line to the session's event ring.
func (t *Tracker) AppendLog(sessionID, level, agentID, message string, details map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, err := t.activeLocked(sessionID)
	if err != nil {
		return err
	}
	t.emitLocked(sess, EventLog, LogPayload{
		Level: level, AgentID: agentID, Message: message, Details: details,
	})
	return nil
}

// CloseSession marks the session terminal, emits session_closed, and starts
// the retention timer. errorKind is empty for successful outcomes.
func (t *Tracker) CloseSession(sessionID string, outcome Phase, errorKind string) error {
	if !outcome.Terminal() {
		return models.NewKindError(models.ErrKindInvalidInput,
			fmt.Sprintf("outcome %q is not terminal", outcome))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sess, err := t.activeLocked(sessionID)
	if err != nil {
		return err
	}
	sess.phase = outcome
	sess.closedAt = t.clock.Now()
	sess.closedKind = errorKind
	t.emitLocked(sess, EventSessionClosed, SessionClosedPayload{Outcome: outcome, ErrorKind: errorKind})
	return nil
}

// Subscribe registers a subscriber for one session or FilterAll.
func (t *Tracker) Subscribe(subscriberID, filter string) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.subscribers[subscriberID]; exists {
		return nil, models.NewKindError(models.ErrKindInvalidInput,
			"subscriber already registered: "+subscriberID)
	}
	sub := newSubscription(subscriberID, filter, t.clock.Now())
	t.subscribers[subscriberID] = sub
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its event channel.
func (t *Tracker) Unsubscribe(subscriberID string) {
	t.mu.Lock()
	sub, ok := t.subscribers[subscriberID]
	delete(t.subscribers, subscriberID)
	t.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Snapshot returns a deep copy of one session's state, including the
// retained event ring. Closed sessions remain snapshotable for the
// retention window.
func (t *Tracker) Snapshot(sessionID string) (*SessionState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[sessionID]
	if !ok {
		return nil, models.NewKindError(models.ErrKindNotFound, "session not tracked: "+sessionID)
	}
	state := t.snapshotLocked(sess)
	return &state, nil
}

// ActiveSessions lists snapshots of every non-terminal session, oldest first.
func (t *Tracker) ActiveSessions() []SessionState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]SessionState, 0, len(t.sessions))
	for _, sess := range t.sessions {
		if sess.closedAt.IsZero() {
			out = append(out, t.snapshotLocked(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// activeLocked resolves a non-terminal session; caller holds t.mu.
func (t *Tracker) activeLocked(sessionID string) (*session, error) {
	sess, ok := t.sessions[sessionID]
	if !ok {
		return nil, models.NewKindError(models.ErrKindNotFound, "session not tracked: "+sessionID)
	}
	if !sess.closedAt.IsZero() {
		return nil, models.NewKindError(models.ErrKindInvalidInput, "session already closed: "+sessionID)
	}
	return sess, nil
}

// emitLocked assigns the next sequence number, appends to the bounded ring,
// and fans out to matching subscribers. Caller holds t.mu, which gives every
// subscriber emit-order delivery per session.
func (t *Tracker) emitLocked(sess *session, eventType string, payload any) {
	sess.seq++
	event := Event{
		Seq:       sess.seq,
		SessionID: sess.id,
		Type:      eventType,
		Timestamp: t.clock.Now(),
		Payload:   payload,
	}

	sess.events = append(sess.events, event)
	if len(sess.events) > eventRingCap {
		sess.events = sess.events[len(sess.events)-eventRingCap:]
	}

	for _, sub := range t.subscribers {
		if sub.matches(sess.id) {
			sub.publish(event)
		}
	}
}

func (t *Tracker) snapshotLocked(sess *session) SessionState {
	agents := make([]AgentState, 0, len(sess.agentOrder))
	for _, agentID := range sess.agentOrder {
		agents = append(agents, *sess.agents[agentID])
	}
	events := make([]Event, len(sess.events))
	copy(events, sess.events)

	progress := phaseProgress[sess.phase]
	if sess.phase == PhaseFailed {
		progress = 0
	}
	return SessionState{
		SessionID:           sess.id,
		Query:               sess.query,
		Phase:               sess.phase,
		Progress:            progress,
		StartedAt:           sess.startedAt,
		EstimatedCompletion: sess.estimated,
		Agents:              agents,
		Events:              events,
		LastSeq:             sess.seq,
		ErrorKind:           sess.closedKind,
	}
}

// heartbeat pings every subscriber and closes the ones past the deadline.
func (t *Tracker) heartbeat(now time.Time) {
	t.mu.Lock()
	var stale []*Subscription
	deadline := now.Add(-subscriberDeadline)
	for id, sub := range t.subscribers {
		if !sub.ackedSince(deadline) {
			stale = append(stale, sub)
			delete(t.subscribers, id)
			continue
		}
		sub.publish(Event{Type: EventHeartbeat, Timestamp: now})
	}
	t.mu.Unlock()

	for _, sub := range stale {
		slog.Info("Closing unresponsive subscriber", "subscriber_id", sub.ID)
		sub.close()
	}
}

// sweep garbage-collects closed sessions past retention.
func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sess := range t.sessions {
		if !sess.closedAt.IsZero() && now.Sub(sess.closedAt) > t.retention {
			delete(t.sessions, id)
		}
	}
}
