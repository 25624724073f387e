package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/calculator"
	"github.com/rhythmstats/ranking-api/internal/models"
)

var (
	recalcDifficulty = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_recalc_difficulty_total",
		Help: "Difficulty calculations refreshed, by engine and outcome",
	}, []string{"engine", "outcome"})

	recalcPerformance = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_recalc_performance_total",
		Help: "Performance calculations refreshed, by engine and outcome",
	}, []string{"engine", "outcome"})
)

// CalcClient is the subset of the Calculator Client the recalculator
// depends on.
type CalcClient interface {
	Info(ctx context.Context, engineName string) (calculator.EngineInfo, error)
	Calculate(ctx context.Context, engineName string, requests []calculator.Request) ([]calculator.Result, error)
}

// Recalculator runs the batch cache refresh pass: partition candidates
// into needs-difficulty and needs-performance, compute difficulty first
// (performance rows reference a difficulty row), bulk-upsert values.
// Re-running against an up-to-date cache is a pure no-op.
type Recalculator struct {
	store  *Store
	client CalcClient
	logger *zap.SugaredLogger
}

func NewRecalculator(store *Store, client CalcClient, logger *zap.SugaredLogger) *Recalculator {
	return &Recalculator{store: store, client: client, logger: logger}
}

// EngineVersion resolves the live engine version, preferring the Redis
// memo, and records it in the version sequence table.
func (r *Recalculator) EngineVersion(ctx context.Context, engine string) (string, error) {
	version := r.store.CachedEngineVersion(ctx, engine)
	if version == "" {
		info, err := r.client.Info(ctx, engine)
		if err != nil {
			return "", fmt.Errorf("resolve engine version: %w", err)
		}
		version = info.Version
		r.store.MemoizeEngineVersion(ctx, engine, version)
	}
	if _, err := r.store.RegisterVersion(ctx, engine, version); err != nil {
		return "", err
	}
	return version, nil
}

// RecalculateScores refreshes difficulty and performance rows for the
// given scores. Individual calculation failures are recorded as failed
// and retried on the next pass; they never abort the batch.
func (r *Recalculator) RecalculateScores(ctx context.Context, engine string, scores []*models.Score) error {
	if len(scores) == 0 {
		return nil
	}

	version, err := r.EngineVersion(ctx, engine)
	if err != nil {
		return err
	}

	if err := r.refreshDifficulty(ctx, engine, version, scores); err != nil {
		return err
	}
	return r.refreshPerformance(ctx, engine, version, scores)
}

// RecalculateBeatmaps refreshes only difficulty rows for the given
// beatmap+mods pairs.
func (r *Recalculator) RecalculateBeatmaps(ctx context.Context, engine string, pairs []BeatmapMods) error {
	if len(pairs) == 0 {
		return nil
	}

	version, err := r.EngineVersion(ctx, engine)
	if err != nil {
		return err
	}
	return r.computeDifficulty(ctx, engine, version, pairs)
}

func (r *Recalculator) refreshDifficulty(ctx context.Context, engine, version string, scores []*models.Score) error {
	// Unique beatmap+mods pairs across the candidate scores.
	seen := make(map[BeatmapMods]bool)
	var pairs []BeatmapMods
	for _, score := range scores {
		key := BeatmapMods{BeatmapID: score.BeatmapID, Mods: score.Mods}
		if !seen[key] {
			seen[key] = true
			pairs = append(pairs, key)
		}
	}

	stale, err := r.store.StaleDifficultyPairs(ctx, pairs, engine, version)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return r.computeDifficulty(ctx, engine, version, stale)
}

func (r *Recalculator) computeDifficulty(ctx context.Context, engine, version string, pairs []BeatmapMods) error {
	requests := make([]calculator.Request, len(pairs))
	for i, p := range pairs {
		requests[i] = calculator.Request{BeatmapID: p.BeatmapID, Mods: int64(p.Mods)}
	}

	results, err := r.client.Calculate(ctx, engine, requests)
	if err != nil {
		return err
	}

	for i, res := range results {
		pair := pairs[i]
		key := pair.BeatmapID + ":" + strconv.FormatInt(int64(pair.Mods), 10)

		calc, err := r.store.UpsertDifficulty(ctx, pair.BeatmapID, pair.Mods, engine, version)
		if err != nil {
			r.logger.Errorw("Difficulty upsert failed", "beatmap_id", pair.BeatmapID, "engine", engine, "error", err)
			recalcDifficulty.WithLabelValues(engine, "failed").Inc()
			continue
		}

		if res.Failed() {
			// Leave the row with no values: it counts as failed and stays
			// stale until retried.
			if err := r.store.ClearDifficultyValues(ctx, calc.ID); err != nil {
				r.logger.Warnw("Failed to clear difficulty values", "calc_id", calc.ID, "error", err)
			}
			r.store.MarkFailed(ctx, engine, "difficulty:"+key)
			recalcDifficulty.WithLabelValues(engine, "failed").Inc()
			continue
		}

		if err := r.store.UpsertDifficultyValues(ctx, calc.ID, res.Values); err != nil {
			r.logger.Errorw("Difficulty value upsert failed", "calc_id", calc.ID, "error", err)
			recalcDifficulty.WithLabelValues(engine, "failed").Inc()
			continue
		}
		r.store.ClearFailed(ctx, engine, "difficulty:"+key)
		recalcDifficulty.WithLabelValues(engine, "ok").Inc()
	}
	return nil
}

func (r *Recalculator) refreshPerformance(ctx context.Context, engine, version string, scores []*models.Score) error {
	byID := make(map[int64]*models.Score, len(scores))
	ids := make([]int64, 0, len(scores))
	for _, score := range scores {
		byID[score.ID] = score
		ids = append(ids, score.ID)
	}

	staleIDs, err := r.store.StaleScoreIDs(ctx, ids, engine, version)
	if err != nil {
		return err
	}
	if len(staleIDs) == 0 {
		return nil
	}

	stale := make([]*models.Score, len(staleIDs))
	requests := make([]calculator.Request, len(staleIDs))
	for i, id := range staleIDs {
		score := byID[id]
		stale[i] = score
		requests[i] = calculator.Request{
			BeatmapID: score.BeatmapID,
			Mods:      int64(score.Mods),
			Count300:  score.Count300,
			Count100:  score.Count100,
			Count50:   score.Count50,
			CountMiss: score.CountMiss,
			Combo:     score.Combo,
		}
	}

	results, err := r.client.Calculate(ctx, engine, requests)
	if err != nil {
		return err
	}

	for i, res := range results {
		score := stale[i]
		key := strconv.FormatInt(score.ID, 10)

		diffID, err := r.store.DifficultyCalcID(ctx, score.BeatmapID, score.Mods, engine)
		if err != nil {
			// No difficulty row yet (its calculation failed this pass);
			// the score stays stale and is retried next time.
			r.store.MarkFailed(ctx, engine, "performance:"+key)
			recalcPerformance.WithLabelValues(engine, "failed").Inc()
			continue
		}

		calc, err := r.store.UpsertPerformance(ctx, score.ID, diffID, engine, version)
		if err != nil {
			r.logger.Errorw("Performance upsert failed", "score_id", score.ID, "engine", engine, "error", err)
			recalcPerformance.WithLabelValues(engine, "failed").Inc()
			continue
		}

		if res.Failed() {
			if err := r.store.ClearPerformanceValues(ctx, calc.ID); err != nil {
				r.logger.Warnw("Failed to clear performance values", "calc_id", calc.ID, "error", err)
			}
			r.store.MarkFailed(ctx, engine, "performance:"+key)
			recalcPerformance.WithLabelValues(engine, "failed").Inc()
			continue
		}

		if err := r.store.UpsertPerformanceValues(ctx, calc.ID, res.Values); err != nil {
			r.logger.Errorw("Performance value upsert failed", "calc_id", calc.ID, "error", err)
			recalcPerformance.WithLabelValues(engine, "failed").Inc()
			continue
		}
		r.store.ClearFailed(ctx, engine, "performance:"+key)
		recalcPerformance.WithLabelValues(engine, "ok").Inc()
	}
	return nil
}
