package logic

import (
	"math"
	"sort"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// RankedScore is a score that qualified for a membership's aggregate,
// with its raw ranking value and decay-weighted contribution.
type RankedScore struct {
	Score    *models.Score
	Value    float64
	Weighted float64
	Position int
}

// RankingValue resolves the value a score ranks by under the given policy.
// The second return is false when the required calculation is missing; such
// scores are excluded from aggregation entirely, never treated as zero.
func RankingValue(score *models.Score, policy models.ScoreSet) (float64, bool) {
	switch policy {
	case models.ScoreSetNeverChoke:
		if score.Result.IsChoke() {
			if score.NoChokeTotal != nil {
				return *score.NoChokeTotal, true
			}
			return 0, false
		}
	case models.ScoreSetAlwaysFullCombo:
		// Non-choke scores are their own best case; chokes need the
		// mutation's total.
		if score.Result.IsChoke() {
			if score.NoChokeTotal != nil {
				return *score.NoChokeTotal, true
			}
			return 0, false
		}
	}
	if score.PerformanceTotal != nil {
		return *score.PerformanceTotal, true
	}
	return 0, false
}

// SelectQualifying resolves ranking values under the policy, deduplicates
// to the single best score per beatmap, sorts descending and assigns the
// decay-weighted contribution of each position.
func SelectQualifying(scores []*models.Score, policy models.ScoreSet, decay float64) []RankedScore {
	bestPerMap := make(map[string]RankedScore)
	for _, score := range scores {
		value, ok := RankingValue(score, policy)
		if !ok {
			continue
		}
		if best, seen := bestPerMap[score.BeatmapID]; !seen || value > best.Value {
			bestPerMap[score.BeatmapID] = RankedScore{Score: score, Value: value}
		}
	}

	ranked := make([]RankedScore, 0, len(bestPerMap))
	for _, rs := range bestPerMap {
		ranked = append(ranked, rs)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Score.ID < ranked[j].Score.ID
	})

	for i := range ranked {
		ranked[i].Position = i
		ranked[i].Weighted = ranked[i].Value * math.Pow(decay, float64(i))
	}
	return ranked
}

// Aggregate computes the decay-weighted total of the qualifying score set.
// Summation runs highest-first; the ordering is part of the contract, an
// ascending sum weights the wrong plays.
func Aggregate(scores []*models.Score, policy models.ScoreSet, decay float64) float64 {
	total := 0.0
	for _, rs := range SelectQualifying(scores, policy, decay) {
		total += rs.Weighted
	}
	return total
}
