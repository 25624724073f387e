package logic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/models"
)

// ScoreService owns the score rows: ingestion of normalized submissions
// and hydrated reads joining calculation results at a given engine version.
type ScoreService struct {
	pg     PgPool
	logger *zap.SugaredLogger
}

func NewScoreService(pg PgPool, logger *zap.SugaredLogger) *ScoreService {
	return &ScoreService{pg: pg, logger: logger}
}

// CreateScore persists a normalized submission, classifying it against its
// beatmap. Resubmitting the same (user, timestamp) pair returns the
// existing row instead of duplicating it. The returned bool reports
// whether a new row was created.
func (s *ScoreService) CreateScore(ctx context.Context, sub *models.ScoreSubmission) (*models.Score, bool, error) {
	beatmap, err := s.Beatmap(ctx, sub.BeatmapID)
	if err != nil {
		return nil, false, err
	}

	score := &models.Score{
		UserID:    sub.UserID,
		BeatmapID: sub.BeatmapID,
		Gamemode:  models.Gamemode(sub.Gamemode),
		Mods:      models.Mods(sub.Mods),
		Count300:  sub.Count300,
		Count100:  sub.Count100,
		Count50:   sub.Count50,
		CountMiss: sub.CountMiss,
		Combo:     sub.Combo,
		Mutation:  models.MutationNone,
		CreatedAt: submissionTime(sub.Timestamp),
		Beatmap:   beatmap,
	}
	score.Result = Classify(score, beatmap.MaxCombo)

	err = s.pg.QueryRow(ctx, `
		INSERT INTO scores
			(user_id, beatmap_id, gamemode, mods, count_300, count_100, count_50, count_miss,
			 combo, result, mutation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, created_at) WHERE mutation = 0 DO NOTHING
		RETURNING id`,
		score.UserID, score.BeatmapID, score.Gamemode, score.Mods,
		score.Count300, score.Count100, score.Count50, score.CountMiss,
		score.Combo, score.Result, score.Mutation, score.CreatedAt).
		Scan(&score.ID)
	if err == nil {
		return score, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert score: %w", err)
	}

	// Duplicate submission: hand back the stored row.
	err = s.pg.QueryRow(ctx, `
		SELECT id, mods, count_300, count_100, count_50, count_miss, combo, result
		FROM scores
		WHERE user_id = $1 AND created_at = $2 AND mutation = 0`,
		score.UserID, score.CreatedAt).
		Scan(&score.ID, &score.Mods, &score.Count300, &score.Count100, &score.Count50,
			&score.CountMiss, &score.Combo, &score.Result)
	if err != nil {
		return nil, false, fmt.Errorf("load duplicate score: %w", err)
	}
	return score, false, nil
}

// Beatmap loads a single beatmap row.
func (s *ScoreService) Beatmap(ctx context.Context, id string) (*models.Beatmap, error) {
	bm := &models.Beatmap{}
	err := s.pg.QueryRow(ctx, `
		SELECT id, gamemode, status, artist, title, version, max_combo,
		       difficulty_total, approved_at, updated_at
		FROM beatmaps WHERE id = $1`, id).
		Scan(&bm.ID, &bm.Gamemode, &bm.Status, &bm.Artist, &bm.Title, &bm.Version,
			&bm.MaxCombo, &bm.DifficultyTotal, &bm.ApprovedAt, &bm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBeatmapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load beatmap %s: %w", id, err)
	}
	return bm, nil
}

const hydratedScoreQuery = `
	SELECT s.id, s.user_id, s.beatmap_id, s.gamemode, s.mods,
	       s.count_300, s.count_100, s.count_50, s.count_miss, s.combo,
	       s.result, s.mutation, s.source_score_id, s.created_at,
	       pv.value, npv.value,
	       b.id, b.gamemode, b.status, b.artist, b.title, b.version,
	       b.max_combo, b.difficulty_total, b.approved_at
	FROM scores s
	JOIN beatmaps b ON b.id = s.beatmap_id
	LEFT JOIN performance_calculations pc
	       ON pc.score_id = s.id AND pc.engine = $2 AND pc.version = $3
	LEFT JOIN performance_values pv
	       ON pv.calculation_id = pc.id AND pv.name = 'total'
	LEFT JOIN scores ns
	       ON ns.source_score_id = s.id AND ns.mutation = 1
	LEFT JOIN performance_calculations npc
	       ON npc.score_id = ns.id AND npc.engine = $2 AND npc.version = $3
	LEFT JOIN performance_values npv
	       ON npv.calculation_id = npc.id AND npv.name = 'total'`

// UserScores returns a user's real scores for a gamemode with performance
// and no-choke totals hydrated at the given engine version. Totals stay
// nil where no fresh calculation exists.
func (s *ScoreService) UserScores(ctx context.Context, q Querier, userID int64, gamemode models.Gamemode, engine, version string) ([]*models.Score, error) {
	rows, err := q.Query(ctx, hydratedScoreQuery+`
	WHERE s.user_id = $1 AND s.gamemode = $4 AND s.mutation = 0
	ORDER BY s.created_at`,
		userID, engine, version, gamemode)
	if err != nil {
		return nil, fmt.Errorf("query user scores: %w", err)
	}
	defer rows.Close()
	return scanHydratedScores(rows)
}

// ScoresByIDs returns hydrated scores, real or mutation, by id.
func (s *ScoreService) ScoresByIDs(ctx context.Context, ids []int64, engine, version string) ([]*models.Score, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pg.Query(ctx, hydratedScoreQuery+`
	WHERE s.id = ANY($1)`,
		ids, engine, version)
	if err != nil {
		return nil, fmt.Errorf("query scores by id: %w", err)
	}
	defer rows.Close()
	return scanHydratedScores(rows)
}

// UserScoreIDs returns every score id a user holds for a gamemode,
// mutations included, for recalculation fan-out.
func (s *ScoreService) UserScoreIDs(ctx context.Context, userID int64, gamemode models.Gamemode) ([]int64, error) {
	rows, err := s.pg.Query(ctx,
		`SELECT id FROM scores WHERE user_id = $1 AND gamemode = $2`,
		userID, gamemode)
	if err != nil {
		return nil, fmt.Errorf("query user score ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BeatmapModPairs returns the distinct beatmap+mods combinations that
// have been played on the given beatmaps, the unit of difficulty
// recalculation.
func (s *ScoreService) BeatmapModPairs(ctx context.Context, beatmapIDs []string) ([]cache.BeatmapMods, error) {
	if len(beatmapIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pg.Query(ctx,
		`SELECT DISTINCT beatmap_id, mods FROM scores WHERE beatmap_id = ANY($1)`,
		beatmapIDs)
	if err != nil {
		return nil, fmt.Errorf("query beatmap mod pairs: %w", err)
	}
	defer rows.Close()

	var pairs []cache.BeatmapMods
	for rows.Next() {
		var pair cache.BeatmapMods
		if err := rows.Scan(&pair.BeatmapID, &pair.Mods); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

// UserIDsWithScores returns the distinct users holding real scores for a
// gamemode, for full recalculation sweeps.
func (s *ScoreService) UserIDsWithScores(ctx context.Context, gamemode models.Gamemode) ([]int64, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT DISTINCT user_id FROM scores WHERE gamemode = $1 AND mutation = 0`,
		gamemode)
	if err != nil {
		return nil, fmt.Errorf("query score users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanHydratedScores(rows pgx.Rows) ([]*models.Score, error) {
	var scores []*models.Score
	for rows.Next() {
		score := &models.Score{Beatmap: &models.Beatmap{}}
		bm := score.Beatmap
		err := rows.Scan(&score.ID, &score.UserID, &score.BeatmapID, &score.Gamemode, &score.Mods,
			&score.Count300, &score.Count100, &score.Count50, &score.CountMiss, &score.Combo,
			&score.Result, &score.Mutation, &score.SourceScoreID, &score.CreatedAt,
			&score.PerformanceTotal, &score.NoChokeTotal,
			&bm.ID, &bm.Gamemode, &bm.Status, &bm.Artist, &bm.Title, &bm.Version,
			&bm.MaxCombo, &bm.DifficultyTotal, &bm.ApprovedAt)
		if err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

func submissionTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Now().UTC()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
