package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/llm"
	"github.com/ensembleworks/ensemble/pkg/memory"
	"github.com/ensembleworks/ensemble/pkg/metrics"
	"github.com/ensembleworks/ensemble/pkg/models"
	"github.com/ensembleworks/ensemble/pkg/realtime"
	"github.com/ensembleworks/ensemble/pkg/router"
)

// retryInitialDelay seeds the jittered single retry for retriable model
// call failures.
const retryInitialDelay = 250 * time.Millisecond

// Skill proficiency deltas applied per interaction.
const (
	skillGainOnSuccess = 0.02
	skillLossOnFailure = -0.05
)

// Dependencies groups the services the coordinator drives.
type Dependencies struct {
	Memory    *memory.Memory
	Metrics   *metrics.Store
	Retriever Retriever
	Pool      Pool
	Router    Router
	Tracker   *realtime.Tracker
}

// Coordinator executes queries end to end: route, plan, retrieve, execute,
// synthesize, commit. One ProcessQuery call per query; safe for concurrent
// use across sessions.
type Coordinator struct {
	deps    Dependencies
	budgets Budgets
	idGen   ids.Generator
	clock   ids.Clock

	// synthesizeWithLLM routes multi-agent synthesis through a reasoning
	// model call, falling back to the deterministic merge on failure.
	synthesizeWithLLM bool

	mu      sync.Mutex
	running map[string]*execution
}

// execution is a cancellable in-flight query.
type execution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithClock(clock ids.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithIDGenerator(g ids.Generator) Option {
	return func(c *Coordinator) { c.idGen = g }
}

func WithLLMSynthesis(enabled bool) Option {
	return func(c *Coordinator) { c.synthesizeWithLLM = enabled }
}

// New creates a coordinator. Zero-value budget fields take defaults.
func New(deps Dependencies, budgets Budgets, opts ...Option) *Coordinator {
	budgets.applyDefaults()
	c := &Coordinator{
		deps:    deps,
		budgets: budgets,
		idGen:   ids.UUIDGenerator{},
		clock:   ids.NewMonotonicClock(),
		running: make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessQuery runs the full execution pipeline for one query and returns
// the synthesized result. Cancellation is cooperative via ctx or Cancel.
func (c *Coordinator) ProcessQuery(ctx context.Context, req Request) (*Result, error) {
	// ─────────────────────────────────────────────────────────────────────
	// 1. Intake: validate, resolve the session, record the user turn.
	// ─────────────────────────────────────────────────────────────────────
	if strings.TrimSpace(req.Query) == "" {
		return nil, models.NewKindError(models.ErrKindInvalidInput, "query must not be empty")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.idGen.NewID()
	}

	start := c.clock.Now()
	execCtx, cancel := context.WithTimeout(ctx, c.budgets.ExecutionTimeout)
	defer cancel()
	if err := c.register(sessionID, cancel); err != nil {
		return nil, err
	}
	defer c.unregister(sessionID)

	c.deps.Memory.EnsureSession(sessionID, req.UserID)
	// Conversation context is captured before the new turn is appended so
	// the prompt does not repeat the query.
	convContext := c.deps.Memory.Context(sessionID)
	c.deps.Memory.Append(sessionID, models.RoleUser, req.Query, "")

	// Knowledge retrieval needs only the query, so it overlaps routing and
	// planning. The channel is buffered: if the execution aborts early the
	// in-flight retrieval finishes against the cancelled execCtx and the
	// send never blocks.
	retrieved := make(chan *knowledge.Knowledge, 1)
	go func() {
		retrieved <- c.deps.Retriever.Retrieve(execCtx, req.Query)
	}()

	// ─────────────────────────────────────────────────────────────────────
	// 2. Route: pick agents for the query.
	// ─────────────────────────────────────────────────────────────────────
	selections, err := c.deps.Router.Route(execCtx, req.Query)
	if err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────
	// 3. Plan: complexity, collaboration, parallelism.
	// ─────────────────────────────────────────────────────────────────────
	toolSets := make([][]string, len(selections))
	agentIDs := make([]string, len(selections))
	for i, sel := range selections {
		toolSets[i] = sel.Agent.Tools
		agentIDs[i] = sel.Agent.ID
	}
	execPlan := buildPlan(req.Query, convContext != "", toolSets)

	if err := c.deps.Tracker.OpenSession(sessionID, req.Query, agentIDs); err != nil {
		return nil, err
	}
	c.track(c.deps.Tracker.SetPhase(sessionID, realtime.PhaseAnalyzing))
	slog.Info("Processing query",
		"session_id", sessionID,
		"agents", len(selections),
		"complexity", execPlan.complexity,
		"collaboration", execPlan.collaboration,
		"parallel", execPlan.parallel)

	// ─────────────────────────────────────────────────────────────────────
	// 4. Retrieve: join the knowledge fan-out launched during intake.
	// Source failures degrade, never abort.
	// ─────────────────────────────────────────────────────────────────────
	know := <-retrieved
	var warnings []Warning
	if know.Warning != "" {
		warnings = append(warnings, Warning{
			Kind:    models.ErrKindKnowledgeUnavailable,
			Message: know.Warning,
		})
		c.track(c.deps.Tracker.AppendLog(sessionID, "warn", "", know.Warning, nil))
	}

	// ─────────────────────────────────────────────────────────────────────
	// 5. Execute: per-agent model calls with budgets and fallback.
	// ─────────────────────────────────────────────────────────────────────
	c.track(c.deps.Tracker.SetPhase(sessionID, realtime.PhaseProcessing))
	if execPlan.collaboration && len(selections) > 1 {
		c.track(c.deps.Tracker.SetPhase(sessionID, realtime.PhaseCollaborating))
		primary := selections[0].Agent
		for _, sel := range selections[1:] {
			c.track(c.deps.Tracker.RecordCollaboration(sessionID, primary.ID, sel.Agent.ID,
				"consult", "multi-domain query"))
		}
	}

	outcomes := c.executeAgents(execCtx, sessionID, req, selections, execPlan, convContext, know)

	if ctxErr := execCtx.Err(); ctxErr != nil {
		kind := models.KindOf(ctxErr)
		c.track(c.deps.Tracker.CloseSession(sessionID, realtime.PhaseFailed, string(kind)))
		return nil, models.WrapKind(kind, ctxErr)
	}

	var successes []agentOutcome
	for _, outcome := range outcomes {
		if outcome.err != nil {
			warnings = append(warnings, Warning{
				AgentName: outcome.selection.Agent.Name,
				Kind:      models.KindOf(outcome.err),
				Message:   outcome.err.Error(),
			})
			continue
		}
		successes = append(successes, outcome)
	}

	// ─────────────────────────────────────────────────────────────────────
	// 6. Synthesize: merge successful outputs, union citations.
	// ─────────────────────────────────────────────────────────────────────
	if len(successes) == 0 {
		c.track(c.deps.Tracker.CloseSession(sessionID, realtime.PhaseFailed,
			string(models.ErrKindPartialFailure)))
		return nil, models.NewKindError(models.ErrKindPartialFailure,
			fmt.Sprintf("all %d agents failed", len(outcomes)))
	}

	response, citations := c.synthesize(execCtx, successes, know.Citations, execPlan)

	// ─────────────────────────────────────────────────────────────────────
	// 7. Commit: persist the turn, close tracking, assemble the result.
	// ─────────────────────────────────────────────────────────────────────
	c.deps.Memory.Append(sessionID, models.RoleAssistant, response,
		successes[0].selection.Agent.Name, citations...)
	c.track(c.deps.Tracker.SetPhase(sessionID, realtime.PhaseFinishing))
	c.track(c.deps.Tracker.CloseSession(sessionID, realtime.PhaseDone, ""))

	result := &Result{
		SessionID:  sessionID,
		Response:   response,
		Citations:  citations,
		AgentsUsed: agentNames(successes),
		Warnings:   warnings,
	}
	result.Performance.ResponseTimeMs = c.clock.Now().Sub(start).Milliseconds()
	var qualitySum float64
	for _, outcome := range successes {
		result.Performance.TokensUsed += outcome.tokens
		result.Performance.Cost += outcome.cost
		qualitySum += outcome.quality
	}
	result.Performance.QualityScore = qualitySum / float64(len(successes))
	if len(successes) < len(outcomes) {
		result.ErrorKind = models.ErrKindPartialFailure
	}
	return result, nil
}

// Cancel aborts an in-flight execution and waits up to the cancel budget
// for it to unwind.
func (c *Coordinator) Cancel(sessionID string) error {
	c.mu.Lock()
	exec, ok := c.running[sessionID]
	c.mu.Unlock()
	if !ok {
		return models.NewKindError(models.ErrKindNotFound, "no running execution for session: "+sessionID)
	}

	exec.cancel()
	select {
	case <-exec.done:
		return nil
	case <-time.After(c.budgets.CancelTimeout):
		return models.NewKindError(models.ErrKindTimeout,
			"execution did not stop within the cancel budget")
	}
}

// Running reports whether a session has an in-flight execution.
func (c *Coordinator) Running(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[sessionID]
	return ok
}

// ─────────────────────────────────────────────────────────────────────────
// Agent execution
// ─────────────────────────────────────────────────────────────────────────

// executeAgents runs every routed agent, in parallel when the plan allows,
// and returns outcomes in selection order. Individual failures are captured
// in the outcome, never propagated.
func (c *Coordinator) executeAgents(ctx context.Context, sessionID string, req Request,
	selections []router.Selection, execPlan plan, convContext string, know *knowledge.Knowledge) []agentOutcome {

	outcomes := make([]agentOutcome, len(selections))

	if execPlan.parallel {
		var group errgroup.Group
		group.SetLimit(c.budgets.MaxParallelAgents)
		for i, sel := range selections {
			group.Go(func() error {
				outcomes[i] = c.executeAgent(ctx, sessionID, req, sel, execPlan, convContext, know)
				return nil
			})
		}
		_ = group.Wait()
		return outcomes
	}

	for i, sel := range selections {
		if ctx.Err() != nil {
			outcomes[i] = agentOutcome{selection: sel, err: models.WrapKind(models.KindOf(ctx.Err()), ctx.Err())}
			continue
		}
		outcomes[i] = c.executeAgent(ctx, sessionID, req, sel, execPlan, convContext, know)
	}
	return outcomes
}

// executeAgent runs one agent: status updates, prompt assembly, model call
// with retry, metrics, and skill bookkeeping.
func (c *Coordinator) executeAgent(ctx context.Context, sessionID string, req Request,
	sel router.Selection, execPlan plan, convContext string, know *knowledge.Knowledge) agentOutcome {

	agent := sel.Agent
	c.track(c.deps.Tracker.SetAgentStatus(sessionID, agent.ID, realtime.AgentAnalyzing, 10, "analyzing query"))
	c.track(c.deps.Tracker.SetAgentStatus(sessionID, agent.ID, realtime.AgentProcessing, 40, "generating response"))

	agentCtx, cancel := context.WithTimeout(ctx, c.budgets.AgentTimeout)
	defer cancel()

	callStart := c.clock.Now()
	res, err := c.invokeModel(agentCtx, llm.InvokeRequest{
		TaskType:      agent.Domain,
		Complexity:    execPlan.complexity,
		PreferredTier: agent.PreferredTier,
		SystemPrompt:  systemPrompt(agent),
		UserPrompt:    userPrompt(convContext, req.Context, know.Results, req.Query),
		MaxTokens:     c.budgets.MaxTokens,
	})
	if err != nil {
		kind := models.KindOf(err)
		slog.Warn("Agent execution failed",
			"session_id", sessionID,
			"agent", agent.Name,
			"error_kind", kind,
			"error", err)
		c.track(c.deps.Tracker.SetAgentStatus(sessionID, agent.ID, realtime.AgentError, 0, err.Error()))
		c.deps.Metrics.Record(models.InteractionRecord{
			SessionID:  sessionID,
			AgentID:    agent.ID,
			Capability: agent.PreferredTier,
			QueryHash:  hashQuery(req.Query),
			LatencyMs:  c.clock.Now().Sub(callStart).Milliseconds(),
			Success:    false,
			ErrorKind:  kind,
		})
		c.deps.Metrics.SkillUpdate(agent.ID, skillName(agent), skillLossOnFailure)
		return agentOutcome{selection: sel, err: err}
	}

	quality := assessQuality(res.Text, sel.Confidence, len(know.Citations))
	c.deps.Pool.RecordQuality(res.Tier, quality)
	c.deps.Metrics.Record(models.InteractionRecord{
		SessionID:  sessionID,
		AgentID:    agent.ID,
		Capability: res.Tier,
		QueryHash:  hashQuery(req.Query),
		Quality:    quality,
		LatencyMs:  res.LatencyMs,
		TokensUsed: res.TokensIn + res.TokensOut,
		Cost:       res.Cost,
		Success:    true,
	})
	c.deps.Metrics.SkillUpdate(agent.ID, skillName(agent), skillGainOnSuccess)
	c.track(c.deps.Tracker.SetAgentStatus(sessionID, agent.ID, realtime.AgentCompleted, 100, "completed"))

	return agentOutcome{
		selection: sel,
		text:      res.Text,
		tier:      res.Tier,
		quality:   quality,
		tokens:    res.TokensIn + res.TokensOut,
		cost:      res.Cost,
	}
}

// invokeModel calls the pool with a single jittered retry for retriable
// failures. Model calls are idempotent, so one retry is safe; anything
// beyond that is the pool's own fallback chain.
func (c *Coordinator) invokeModel(ctx context.Context, req llm.InvokeRequest) (*llm.InvokeResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialDelay
	policy.RandomizationFactor = 0.5

	var result *llm.InvokeResult
	err := backoff.Retry(func() error {
		res, err := c.deps.Pool.Invoke(ctx, req)
		if err != nil {
			if models.KindOf(err).Retriable() {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// synthesize produces the final response text. With LLM synthesis enabled
// and multiple outputs, a reasoning-tier call condenses them; any failure
// falls back to the deterministic merge.
func (c *Coordinator) synthesize(ctx context.Context, successes []agentOutcome,
	citations []models.Citation, execPlan plan) (string, []models.Citation) {

	merged, reindexed := mergeOutcomes(successes, citations)
	if !c.synthesizeWithLLM || len(successes) < 2 {
		return merged, reindexed
	}

	res, err := c.deps.Pool.Invoke(ctx, llm.InvokeRequest{
		TaskType:      "synthesis",
		Complexity:    execPlan.complexity,
		PreferredTier: models.TierReasoning,
		SystemPrompt:  "You merge multiple expert answers into one coherent response. Preserve citations.",
		UserPrompt:    merged,
		MaxTokens:     c.budgets.MaxTokens,
	})
	if err != nil {
		slog.Warn("LLM synthesis failed, using deterministic merge", "error", err)
		return merged, reindexed
	}
	return res.Text, reindexed
}

// ─────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────

func (c *Coordinator) register(sessionID string, cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.running[sessionID]; exists {
		return models.NewKindError(models.ErrKindInvalidInput,
			"session already has a running execution: "+sessionID)
	}
	c.running[sessionID] = &execution{cancel: cancel, done: make(chan struct{})}
	return nil
}

func (c *Coordinator) unregister(sessionID string) {
	c.mu.Lock()
	exec := c.running[sessionID]
	delete(c.running, sessionID)
	c.mu.Unlock()
	if exec != nil {
		close(exec.done)
	}
}

// track logs tracker bookkeeping failures without failing the execution.
func (c *Coordinator) track(err error) {
	if err != nil {
		slog.Warn("Tracker update failed", "error", err)
	}
}

func skillName(agent models.Agent) string {
	if agent.Domain != "" {
		return agent.Domain
	}
	return "general"
}

func agentNames(outcomes []agentOutcome) []string {
	names := make([]string, len(outcomes))
	for i, outcome := range outcomes {
		names[i] = outcome.selection.Agent.Name
	}
	return names
}
