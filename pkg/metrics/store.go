// Package metrics records every interaction, serves aggregates off the
// execution hot path, and derives learning insights from feedback.
//
// The append path is non-blocking: records land in an in-memory buffer and
// drain to the configured sink through a journal goroutine with backoff.
// Rollup readers may observe results up to a second stale.
package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// skillDeltaBound caps a single proficiency adjustment.
const skillDeltaBound = 0.1

// Store is the metrics and learning store.
type Store struct {
	mu sync.RWMutex

	records  []models.InteractionRecord
	byAgent  map[string][]int // agent id → record indexes
	feedback map[string]feedbackEntry

	skills   map[skillKey]*models.AgentSkill
	insights []models.LearningInsight

	// onInsight hooks fire synchronously when an insight is generated.
	onInsight []func(models.LearningInsight)

	journal *journal
	idGen   ids.Generator
	clock   ids.Clock
}

type skillKey struct {
	agentID string
	skill   string
}

type feedbackEntry struct {
	Rating    int
	Comment   string
	Timestamp time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithSink attaches a durable sink; records are journaled to it asynchronously.
func WithSink(sink Sink) Option {
	return func(s *Store) { s.journal = newJournal(sink) }
}

// WithClock overrides the time source (tests).
func WithClock(c ids.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator overrides id generation (tests).
func WithIDGenerator(g ids.Generator) Option {
	return func(s *Store) { s.idGen = g }
}

// NewStore creates a metrics store. Without a sink, records are retained
// in memory only (tests and single-node deployments).
func NewStore(opts ...Option) *Store {
	s := &Store{
		byAgent:  make(map[string][]int),
		feedback: make(map[string]feedbackEntry),
		skills:   make(map[skillKey]*models.AgentSkill),
		idGen:    ids.UUIDGenerator{},
		clock:    ids.NewMonotonicClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.journal != nil {
		s.journal.onShed = s.recordShedding
		s.journal.start()
	}
	return s
}

// Close flushes and stops the journal. Safe to call once at shutdown.
func (s *Store) Close() {
	if s.journal != nil {
		s.journal.stop()
	}
}

// OnInsight registers a hook invoked whenever an insight is generated or
// its status changes. Hooks run synchronously on the triggering goroutine
// and must be fast; they see the insight's current status, so a hook that
// acts only on applied insights checks Status itself.
func (s *Store) OnInsight(fn func(models.LearningInsight)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInsight = append(s.onInsight, fn)
}

// Record appends an interaction record. Never blocks the caller: the
// in-memory rollup state is updated under a short lock and sink delivery
// happens on the journal goroutine.
func (s *Store) Record(rec models.InteractionRecord) {
	if rec.ID == "" {
		rec.ID = s.idGen.NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.clock.Now()
	}
	rec.Quality = models.Clamp01(rec.Quality)

	s.mu.Lock()
	idx := len(s.records)
	s.records = append(s.records, rec)
	s.byAgent[rec.AgentID] = append(s.byAgent[rec.AgentID], idx)
	s.mu.Unlock()

	if s.journal != nil {
		s.journal.enqueue(rec)
	}
}

// Feedback attaches a satisfaction rating to a session and triggers insight
// generation. Returns true when an insight was generated.
func (s *Store) Feedback(sessionID string, rating int, comment string) bool {
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.feedback[sessionID] = feedbackEntry{Rating: rating, Comment: comment, Timestamp: now}
	agents := s.sessionAgentsLocked(sessionID)
	s.mu.Unlock()

	generated := false
	if ins, ok := s.satisfactionInsight(sessionID, rating); ok {
		s.addInsight(ins)
		generated = true
	}
	for _, agentID := range agents {
		if ins, ok := s.driftInsight(agentID); ok {
			s.addInsight(ins)
			generated = true
		}
	}
	return generated
}

// Summary aggregates interactions for one agent within the window.
// window <= 0 means all time.
func (s *Store) Summary(agentID string, window time.Duration) models.MetricsSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summarizeLocked(s.byAgent[agentID], window)
}

// SystemSummary aggregates all interactions within the window.
func (s *Store) SystemSummary(window time.Duration) models.MetricsSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]int, len(s.records))
	for i := range s.records {
		all[i] = i
	}
	return s.summarizeLocked(all, window)
}

// summarizeLocked computes the aggregate over the given record indexes.
// Caller holds at least a read lock.
func (s *Store) summarizeLocked(idxs []int, window time.Duration) models.MetricsSummary {
	var cutoff time.Time
	if window > 0 {
		cutoff = s.clock.Now().Add(-window)
	}

	var sum models.MetricsSummary
	var qualitySum, latencySum, costSum float64
	successes := 0
	sessions := make(map[string]bool)

	for _, i := range idxs {
		rec := s.records[i]
		if window > 0 && rec.Timestamp.Before(cutoff) {
			continue
		}
		sum.Interactions++
		qualitySum += rec.Quality
		latencySum += float64(rec.LatencyMs)
		costSum += rec.Cost
		if rec.Success {
			successes++
		}
		sessions[rec.SessionID] = true
	}

	if sum.Interactions == 0 {
		return sum
	}
	n := float64(sum.Interactions)
	sum.AvgQuality = qualitySum / n
	sum.AvgLatencyMs = latencySum / n
	sum.AvgCost = costSum / n
	sum.SuccessRate = float64(successes) / n

	ratingSum, ratingCount := 0, 0
	for sessionID := range sessions {
		if fb, ok := s.feedback[sessionID]; ok {
			ratingSum += fb.Rating
			ratingCount++
		}
	}
	if ratingCount > 0 {
		sum.AvgRating = float64(ratingSum) / float64(ratingCount)
	}
	return sum
}

// SkillUpdate applies a bounded proficiency delta for (agentID, skillName).
// Proficiency is clamped to [0,1]; usage count only ever grows.
func (s *Store) SkillUpdate(agentID, skillName string, delta float64) models.AgentSkill {
	if delta > skillDeltaBound {
		delta = skillDeltaBound
	}
	if delta < -skillDeltaBound {
		delta = -skillDeltaBound
	}

	now := s.clock.Now()
	key := skillKey{agentID: agentID, skill: skillName}

	s.mu.Lock()
	sk, ok := s.skills[key]
	if !ok {
		sk = &models.AgentSkill{AgentID: agentID, SkillName: skillName, Proficiency: 0.5}
		s.skills[key] = sk
	}
	sk.Proficiency = models.Clamp01(sk.Proficiency + delta)
	sk.UsageCount++
	sk.Trend = 0.8*sk.Trend + 0.2*delta
	sk.LastUsed = now
	out := *sk
	s.mu.Unlock()

	if s.journal != nil {
		s.journal.enqueueSkill(out)
	}
	return out
}

// Skill returns the current skill state, if tracked.
func (s *Store) Skill(agentID, skillName string) (models.AgentSkill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.skills[skillKey{agentID: agentID, skill: skillName}]
	if !ok {
		return models.AgentSkill{}, false
	}
	return *sk, true
}

// Insights returns insights with the given status, newest first, up to limit.
func (s *Store) Insights(status models.InsightStatus, limit int) []models.LearningInsight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LearningInsight, 0, limit)
	for i := len(s.insights) - 1; i >= 0; i-- {
		if s.insights[i].Status != status {
			continue
		}
		out = append(out, s.insights[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// SetInsightStatus transitions an insight to applied or dismissed, fires
// the OnInsight hooks with the updated insight, and journals the change so
// the sink upserts the new status.
func (s *Store) SetInsightStatus(insightID string, status models.InsightStatus) bool {
	now := s.clock.Now()

	s.mu.Lock()
	var updated *models.LearningInsight
	for i := range s.insights {
		if s.insights[i].ID != insightID {
			continue
		}
		s.insights[i].Status = status
		if status == models.InsightApplied {
			s.insights[i].ImplementedAt = &now
		}
		ins := s.insights[i]
		updated = &ins
		break
	}
	hooks := make([]func(models.LearningInsight), len(s.onInsight))
	copy(hooks, s.onInsight)
	s.mu.Unlock()

	if updated == nil {
		return false
	}

	slog.Info("Learning insight status changed",
		"insight_id", updated.ID, "type", updated.Type, "status", status)

	for _, fn := range hooks {
		fn(*updated)
	}

	if s.journal != nil {
		s.journal.enqueueInsight(*updated)
	}
	return true
}

// InteractionCount returns the number of recorded interactions (tests, health).
func (s *Store) InteractionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// addInsight appends an insight and fires hooks.
func (s *Store) addInsight(ins models.LearningInsight) {
	s.mu.Lock()
	s.insights = append(s.insights, ins)
	hooks := make([]func(models.LearningInsight), len(s.onInsight))
	copy(hooks, s.onInsight)
	s.mu.Unlock()

	slog.Info("Learning insight generated",
		"insight_id", ins.ID, "type", ins.Type, "confidence", ins.Confidence)

	for _, fn := range hooks {
		fn(ins)
	}

	if s.journal != nil {
		s.journal.enqueueInsight(ins)
	}
}

// recordShedding is called by the journal when it drops buffered records.
func (s *Store) recordShedding(dropped int) {
	s.addInsight(models.LearningInsight{
		ID:          s.idGen.NewID(),
		Type:        models.InsightMetricsShedding,
		Title:       "Metrics journal shedding records",
		Description: "The metrics journal buffer overflowed and the oldest non-critical records were dropped.",
		Confidence:  1.0,
		DataPoints:  dropped,
		RecommendedActions: []string{
			"check sink availability",
			"increase journal buffer capacity",
		},
		Status:    models.InsightPending,
		CreatedAt: s.clock.Now(),
	})
}

// sessionAgentsLocked returns the distinct agent ids seen in a session.
// Caller holds the lock.
func (s *Store) sessionAgentsLocked(sessionID string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range s.records {
		if rec.SessionID == sessionID && !seen[rec.AgentID] {
			seen[rec.AgentID] = true
			out = append(out, rec.AgentID)
		}
	}
	return out
}
