package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	// speedCeiling is the response-time ceiling for speed scoring: at or
	// above this average, speedScore is 0.
	speedCeiling = 5 * time.Second

	// callTimeout is the default per-capability invocation timeout.
	callTimeout = 30 * time.Second

	// maxFallbacks after the first attempt.
	maxFallbacks = 2

	// neutralQuality is assumed for capabilities with no quality samples
	// yet, so fresh capabilities are neither favored nor buried.
	neutralQuality = 0.5
)

// Weights tune the selection score. Insights may adjust them at runtime.
type Weights struct {
	Quality     float64 `yaml:"quality"`
	Speed       float64 `yaml:"speed"`
	Cost        float64 `yaml:"cost"`
	Reliability float64 `yaml:"reliability"`
}

// DefaultWeights per the selection model.
func DefaultWeights() Weights {
	return Weights{Quality: 0.4, Speed: 0.3, Cost: 0.2, Reliability: 0.1}
}

// capability is one pool entry: config plus live metrics. All access is
// serialized by the pool mutex (single-writer).
type capability struct {
	cfg     CapabilityConfig
	invoker Invoker

	responseTimes sampleRing // seconds
	qualities     sampleRing
	successCount  int64
	errorCount    int64
	tokensIn      int64
	tokensOut     int64
	totalCost     float64
	expertise     map[string]int // taskType multiset
}

// Pool owns the configured capabilities and selects one per task.
type Pool struct {
	mu           sync.Mutex
	capabilities map[models.CapabilityTier]*capability
	weights      Weights
}

// NewPool creates an empty pool with default weights.
func NewPool() *Pool {
	return &Pool{
		capabilities: make(map[models.CapabilityTier]*capability),
		weights:      DefaultWeights(),
	}
}

// Register adds or replaces a capability. Metrics of a replaced capability
// are discarded.
func (p *Pool) Register(cfg CapabilityConfig, invoker Invoker) error {
	if !models.ValidTier(cfg.Tier) {
		return models.NewKindError(models.ErrKindInvalidInput,
			fmt.Sprintf("unknown capability tier %q", cfg.Tier))
	}
	if invoker == nil {
		return models.NewKindError(models.ErrKindInvalidInput,
			fmt.Sprintf("capability %s has no invoker", cfg.Tier))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capabilities[cfg.Tier] = &capability{
		cfg:       cfg,
		invoker:   invoker,
		expertise: make(map[string]int),
	}
	return nil
}

// SetWeights replaces the selection weights (insight feedback path).
func (p *Pool) SetWeights(w Weights) {
	p.mu.Lock()
	p.weights = w
	p.mu.Unlock()
}

// weightStep is how far a single applied insight shifts the weights.
const weightStep = 0.05

// ApplyInsight nudges the selection weights in the direction an applied
// learning insight points: low satisfaction trades cost sensitivity for
// quality, routing drift trades speed for reliability. Returns false for
// insight types that carry no weight adjustment.
func (p *Pool) ApplyInsight(ins models.LearningInsight) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.weights
	switch ins.Type {
	case models.InsightLowSatisfaction:
		w.Quality += weightStep
		w.Cost -= weightStep
	case models.InsightRoutingDrift:
		w.Reliability += weightStep
		w.Speed -= weightStep
	default:
		return false
	}
	p.weights = normalizeWeights(w)
	return true
}

// normalizeWeights clamps negatives to zero and rescales so the components
// sum to 1. Repeated insights therefore converge instead of running a
// weight below zero.
func normalizeWeights(w Weights) Weights {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}
	w.Quality = clamp(w.Quality)
	w.Speed = clamp(w.Speed)
	w.Cost = clamp(w.Cost)
	w.Reliability = clamp(w.Reliability)

	sum := w.Quality + w.Speed + w.Cost + w.Reliability
	if sum == 0 {
		return DefaultWeights()
	}
	w.Quality /= sum
	w.Speed /= sum
	w.Cost /= sum
	w.Reliability /= sum
	return w
}

// Select ranks capabilities for the given task, best first. Capabilities
// above the budget cap are excluded; ties break by lower average cost, then
// lower average latency.
func (p *Pool) Select(taskType string, complexity float64, budgetCap float64) []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectLocked(taskType, complexity, budgetCap, nil)
}

func (p *Pool) selectLocked(taskType string, complexity float64, budgetCap float64, exclude map[models.CapabilityTier]bool) []Candidate {
	type scored struct {
		cand    Candidate
		avgCost float64
		avgTime float64
	}
	ranked := make([]scored, 0, len(p.capabilities))
	for tier, cap := range p.capabilities {
		if exclude[tier] {
			continue
		}
		if budgetCap > 0 && cap.cfg.CostPerToken > budgetCap {
			continue
		}
		ranked = append(ranked, scored{
			cand:    Candidate{Tier: tier, Score: p.score(cap, taskType, complexity)},
			avgCost: cap.avgCostPerCall(),
			avgTime: cap.responseTimes.avg(0),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].cand.Score != ranked[j].cand.Score {
			return ranked[i].cand.Score > ranked[j].cand.Score
		}
		if ranked[i].avgCost != ranked[j].avgCost {
			return ranked[i].avgCost < ranked[j].avgCost
		}
		if ranked[i].avgTime != ranked[j].avgTime {
			return ranked[i].avgTime < ranked[j].avgTime
		}
		// Stable order for identical metrics.
		return ranked[i].cand.Tier < ranked[j].cand.Tier
	})

	out := make([]Candidate, len(ranked))
	for i, s := range ranked {
		out[i] = s.cand
	}
	return out
}

// score computes the selection score for one capability.
func (p *Pool) score(cap *capability, taskType string, complexity float64) float64 {
	avgQuality := cap.qualities.avg(neutralQuality)

	avgSeconds := cap.responseTimes.avg(0)
	ratio := avgSeconds / speedCeiling.Seconds()
	if ratio > 1 {
		ratio = 1
	}
	speedScore := 1 - ratio

	costScore := 1 / (1 + cap.cfg.CostPerToken*1000)

	total := cap.successCount + cap.errorCount
	denom := total
	if denom < 1 {
		denom = 1
	}
	reliability := float64(cap.successCount) / float64(denom)
	errorRate := float64(cap.errorCount) / float64(denom)

	expertiseBonus := 0.0
	if cap.expertise[taskType] > 0 {
		expertiseBonus = 0.2
	}

	complexityBonus := 0.0
	switch cap.cfg.Tier {
	case models.TierPowerful, models.TierReasoning:
		if complexity >= 0.7 {
			complexityBonus = 0.15
		}
	case models.TierFast, models.TierBalanced:
		if complexity <= 0.4 {
			complexityBonus = 0.10
		}
	}

	w := p.weights
	return w.Quality*avgQuality + w.Speed*speedScore + w.Cost*costScore +
		w.Reliability*reliability + expertiseBonus + complexityBonus - 0.5*errorRate
}

// Invoke selects the best capability and calls it, falling back to the
// next-scored capability on failure, up to maxFallbacks extra attempts.
// Failures increment the failed capability's error count; the final error
// after exhausting candidates is provider_error unless every attempt was
// cancellation.
func (p *Pool) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	tried := make(map[models.CapabilityTier]bool)
	var lastErr error

	for attempt := 0; attempt <= maxFallbacks; attempt++ {
		tier, cap := p.pick(req, tried)
		if cap == nil {
			break
		}
		tried[tier] = true

		result, err := p.invokeOne(ctx, tier, cap, req, attempt+1)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := models.KindOf(err)
		if kind == models.ErrKindCancelled {
			return nil, err
		}
		slog.Warn("LLM capability failed, trying fallback",
			"tier", tier, "attempt", attempt+1, "error_kind", kind, "error", err)
	}

	if lastErr == nil {
		return nil, models.NewKindError(models.ErrKindProviderError, "no LLM capabilities available")
	}
	return nil, models.WrapKind(models.ErrKindProviderError, lastErr)
}

// pick returns the best untried capability. The preferred tier wins when it
// is within 0.1 of the top score, so a healthy preference is honored without
// overriding a clearly better option.
func (p *Pool) pick(req InvokeRequest, tried map[models.CapabilityTier]bool) (models.CapabilityTier, *capability) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.selectLocked(req.TaskType, req.Complexity, req.BudgetCap, tried)
	if len(candidates) == 0 {
		return "", nil
	}

	chosen := candidates[0]
	if req.PreferredTier != "" && chosen.Tier != req.PreferredTier {
		for _, cand := range candidates[1:] {
			if cand.Tier == req.PreferredTier && chosen.Score-cand.Score <= 0.1 {
				chosen = cand
				break
			}
		}
	}
	return chosen.Tier, p.capabilities[chosen.Tier]
}

func (p *Pool) invokeOne(ctx context.Context, tier models.CapabilityTier, cap *capability, req InvokeRequest, attempt int) (*InvokeResult, error) {
	maxTokens := cap.cfg.MaxTokens
	if req.MaxTokens > 0 && req.MaxTokens < maxTokens {
		maxTokens = req.MaxTokens
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := cap.invoker.Invoke(cctx, Request{
		ModelID:      cap.cfg.ModelID,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  cap.cfg.Temperature,
		MaxTokens:    maxTokens,
	})
	elapsed := time.Since(start)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		cap.errorCount++
		return nil, err
	}

	cost := float64(resp.TokensIn+resp.TokensOut) * cap.cfg.CostPerToken
	cap.successCount++
	cap.responseTimes.push(elapsed.Seconds())
	cap.tokensIn += int64(resp.TokensIn)
	cap.tokensOut += int64(resp.TokensOut)
	cap.totalCost += cost
	if req.TaskType != "" {
		cap.expertise[req.TaskType]++
	}

	return &InvokeResult{
		Text:         resp.Text,
		Tier:         tier,
		ModelID:      cap.cfg.ModelID,
		TokensIn:     resp.TokensIn,
		TokensOut:    resp.TokensOut,
		Cost:         cost,
		LatencyMs:    elapsed.Milliseconds(),
		FinishReason: resp.FinishReason,
		Attempts:     attempt,
	}, nil
}

// RecordQuality pushes a quality sample for a capability once the caller
// has assessed the response. Quality is clamped to [0,1].
func (p *Pool) RecordQuality(tier models.CapabilityTier, quality float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap, ok := p.capabilities[tier]; ok {
		cap.qualities.push(models.Clamp01(quality))
	}
}

// Stats returns the read-only metrics view, sorted by tier.
func (p *Pool) Stats() []CapabilityStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CapabilityStats, 0, len(p.capabilities))
	for tier, cap := range p.capabilities {
		out = append(out, CapabilityStats{
			Tier:            tier,
			ModelID:         cap.cfg.ModelID,
			AvgQuality:      cap.qualities.avg(0),
			QualitySamples:  cap.qualities.len(),
			AvgResponseSec:  cap.responseTimes.avg(0),
			SuccessCount:    cap.successCount,
			ErrorCount:      cap.errorCount,
			TokensIn:        cap.tokensIn,
			TokensOut:       cap.tokensOut,
			TotalCost:       cap.totalCost,
			EfficiencyScore: cap.efficiencyScore(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// avgCostPerCall is the realized average cost, used for tie-breaking.
func (c *capability) avgCostPerCall() float64 {
	if c.successCount == 0 {
		return c.cfg.CostPerToken
	}
	return c.totalCost / float64(c.successCount)
}

// efficiencyScore = avgQuality / costPerToken × (1 + speedBonus), where
// speedBonus rewards averages below the speed ceiling.
func (c *capability) efficiencyScore() float64 {
	if c.cfg.CostPerToken <= 0 {
		return 0
	}
	avgSeconds := c.responseTimes.avg(0)
	speedBonus := (speedCeiling.Seconds() - avgSeconds) / speedCeiling.Seconds()
	if speedBonus < 0 {
		speedBonus = 0
	}
	speedBonus *= 0.2
	return c.qualities.avg(0) / c.cfg.CostPerToken * (1 + speedBonus)
}
