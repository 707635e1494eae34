package metrics

import (
	"fmt"
	"time"

	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	// driftWindow is the comparison window for the routing drift detector.
	driftWindow = 7 * 24 * time.Hour

	// driftMinDataPoints is the minimum sample size before drift is reported.
	driftMinDataPoints = 20

	// driftThreshold is the relative success-rate drop that triggers an insight.
	driftThreshold = 0.15
)

// satisfactionInsight maps a feedback rating to an insight.
// rating <= 2 → low_satisfaction (confidence 0.8);
// rating >= 4 → high_satisfaction (confidence 0.9); otherwise none.
func (s *Store) satisfactionInsight(sessionID string, rating int) (models.LearningInsight, bool) {
	switch {
	case rating <= 2:
		return models.LearningInsight{
			ID:          s.idGen.NewID(),
			Type:        models.InsightLowSatisfaction,
			Title:       "Low satisfaction feedback",
			Description: fmt.Sprintf("Session %s was rated %d/5.", sessionID, rating),
			Confidence:  0.8,
			DataPoints:  1,
			RecommendedActions: []string{
				"review agent routing for this query type",
				"analyze response quality",
				"consider additional agent training",
			},
			Status:    models.InsightPending,
			CreatedAt: s.clock.Now(),
		}, true
	case rating >= 4:
		return models.LearningInsight{
			ID:          s.idGen.NewID(),
			Type:        models.InsightHighSatisfaction,
			Title:       "High satisfaction feedback",
			Description: fmt.Sprintf("Session %s was rated %d/5.", sessionID, rating),
			Confidence:  0.9,
			DataPoints:  1,
			RecommendedActions: []string{
				"reinforce successful routing pattern",
				"record interaction as a positive example",
			},
			Status:    models.InsightPending,
			CreatedAt: s.clock.Now(),
		}, true
	}
	return models.LearningInsight{}, false
}

// driftInsight compares an agent's success rate over the last week with the
// week before. A relative drop greater than driftThreshold with at least
// driftMinDataPoints samples in each window yields a routing_drift insight.
func (s *Store) driftInsight(agentID string) (models.LearningInsight, bool) {
	now := s.clock.Now()
	recentCutoff := now.Add(-driftWindow)
	priorCutoff := now.Add(-2 * driftWindow)

	s.mu.RLock()
	var recentTotal, recentOK, priorTotal, priorOK int
	for _, i := range s.byAgent[agentID] {
		rec := s.records[i]
		switch {
		case !rec.Timestamp.Before(recentCutoff):
			recentTotal++
			if rec.Success {
				recentOK++
			}
		case !rec.Timestamp.Before(priorCutoff):
			priorTotal++
			if rec.Success {
				priorOK++
			}
		}
	}
	s.mu.RUnlock()

	if recentTotal < driftMinDataPoints || priorTotal < driftMinDataPoints {
		return models.LearningInsight{}, false
	}

	priorRate := float64(priorOK) / float64(priorTotal)
	recentRate := float64(recentOK) / float64(recentTotal)
	if priorRate == 0 || (priorRate-recentRate)/priorRate <= driftThreshold {
		return models.LearningInsight{}, false
	}

	return models.LearningInsight{
		ID:   s.idGen.NewID(),
		Type: models.InsightRoutingDrift,
		Title:  "Routing drift detected",
		Description: fmt.Sprintf(
			"Agent %s success rate dropped from %.0f%% to %.0f%% week-over-week.",
			agentID, priorRate*100, recentRate*100),
		Confidence: 0.7,
		DataPoints: recentTotal + priorTotal,
		RecommendedActions: []string{
			"review keyword routing for this agent",
			"compare against alternative agents for the same query cluster",
			"inspect recent failed interactions",
		},
		Status:    models.InsightPending,
		CreatedAt: now,
	}, true
}
