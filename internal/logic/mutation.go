package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// Classify derives a score's result from its miss count and combo relative
// to the beatmap's maximum combo. The 85% and 98% boundaries are exclusive:
// exactly 85% with no misses is still a slider break.
func Classify(score *models.Score, maxCombo int) models.ScoreResult {
	pct := score.ComboPercent(maxCombo)
	switch {
	case score.CountMiss == 1:
		return models.ResultOneMiss
	case pct == 100:
		return models.ResultPerfect
	case pct > 98 && score.CountMiss == 0:
		return models.ResultNoBreak
	case pct > 85:
		return models.ResultEndChoke
	case score.CountMiss == 0:
		return models.ResultSliderBreak
	default:
		return models.ResultClear
	}
}

// DeriveNoChoke builds the hypothetical unchoked variant of a score:
// combo raised to the beatmap maximum, misses downgraded to 100s. The
// variant references its source and carries no calculation results until
// the next recalculation pass.
func DeriveNoChoke(score *models.Score, maxCombo int) *models.Score {
	sourceID := score.ID
	return &models.Score{
		UserID:        score.UserID,
		BeatmapID:     score.BeatmapID,
		Gamemode:      score.Gamemode,
		Mods:          score.Mods,
		Count300:      score.Count300,
		Count100:      score.Count100 + score.CountMiss,
		Count50:       score.Count50,
		CountMiss:     0,
		Combo:         maxCombo,
		Result:        models.ResultPerfect,
		Mutation:      models.MutationNoChoke,
		SourceScoreID: &sourceID,
		CreatedAt:     score.CreatedAt,
		Beatmap:       score.Beatmap,
	}
}

// MutationService lazily materializes mutation rows. A mutation is derived
// at most once per source score and cached as an independent score row.
type MutationService struct {
	logger *zap.SugaredLogger
}

func NewMutationService(logger *zap.SugaredLogger) *MutationService {
	return &MutationService{logger: logger}
}

// EnsureNoChoke returns the no-choke variant of a choked score, creating
// it on first need. The returned bool reports whether a new row was
// inserted this call.
func (s *MutationService) EnsureNoChoke(ctx context.Context, q Querier, score *models.Score) (*models.Score, bool, error) {
	if score.Beatmap == nil {
		return nil, false, fmt.Errorf("score %d has no hydrated beatmap", score.ID)
	}

	existing := &models.Score{Mutation: models.MutationNoChoke, SourceScoreID: &score.ID}
	err := q.QueryRow(ctx, `
		SELECT id, user_id, beatmap_id, gamemode, mods,
		       count_300, count_100, count_50, count_miss, combo, created_at
		FROM scores
		WHERE source_score_id = $1 AND mutation = $2`,
		score.ID, models.MutationNoChoke).
		Scan(&existing.ID, &existing.UserID, &existing.BeatmapID, &existing.Gamemode, &existing.Mods,
			&existing.Count300, &existing.Count100, &existing.Count50, &existing.CountMiss,
			&existing.Combo, &existing.CreatedAt)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("look up nochoke mutation for score %d: %w", score.ID, err)
	}

	mutation := DeriveNoChoke(score, score.Beatmap.MaxCombo)
	err = q.QueryRow(ctx, `
		INSERT INTO scores
			(user_id, beatmap_id, gamemode, mods, count_300, count_100, count_50, count_miss,
			 combo, result, mutation, source_score_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		mutation.UserID, mutation.BeatmapID, mutation.Gamemode, mutation.Mods,
		mutation.Count300, mutation.Count100, mutation.Count50, mutation.CountMiss,
		mutation.Combo, mutation.Result, mutation.Mutation, mutation.SourceScoreID, mutation.CreatedAt).
		Scan(&mutation.ID)
	if err != nil {
		return nil, false, fmt.Errorf("create nochoke mutation for score %d: %w", score.ID, err)
	}

	s.logger.Infow("Created nochoke mutation",
		"score_id", score.ID,
		"mutation_id", mutation.ID,
		"beatmap_id", score.BeatmapID,
	)
	return mutation, true, nil
}
