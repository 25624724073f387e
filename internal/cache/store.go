// Package cache maintains the versioned, idempotent store of difficulty
// and performance calculations. Rows are keyed by their natural unique
// keys and stamped with the engine version that produced them; a row is
// valid only when both engine and version match the live calculator
// exactly and the row carries a full value set.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RedisClient defines the interface for Redis client
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// engineVersionTTL bounds how long an engine's advertised version is
// served from Redis before asking the engine again.
const engineVersionTTL = time.Minute

// BeatmapMods is the unique key of a difficulty calculation under one
// engine.
type BeatmapMods struct {
	BeatmapID string
	Mods      models.Mods
}

// Store is the persistent calculation cache.
type Store struct {
	pg     PgPool
	redis  RedisClient
	logger *zap.SugaredLogger
}

func NewStore(pg PgPool, rdb RedisClient, logger *zap.SugaredLogger) *Store {
	return &Store{pg: pg, redis: rdb, logger: logger}
}

// RegisterVersion records an engine version the first time it is seen and
// returns its monotonically-increasing sequence number. The sequence is
// what makes "newer" meaningful for opaque version strings: a version
// first observed later is newer.
func (s *Store) RegisterVersion(ctx context.Context, engine, version string) (int64, error) {
	var seq int64
	err := s.pg.QueryRow(ctx, `
		INSERT INTO engine_versions (engine, version, first_seen)
		VALUES ($1, $2, NOW())
		ON CONFLICT (engine, version) DO UPDATE SET engine = EXCLUDED.engine
		RETURNING seq
	`, engine, version).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("register engine version: %w", err)
	}
	return seq, nil
}

// CachedEngineVersion returns the memoized live version for an engine, or
// "" when the memo is cold.
func (s *Store) CachedEngineVersion(ctx context.Context, engine string) string {
	v, err := s.redis.Get(ctx, "engine:"+engine+":version").Result()
	if err != nil {
		return ""
	}
	return v
}

// MemoizeEngineVersion stores the live version in Redis for a short TTL.
func (s *Store) MemoizeEngineVersion(ctx context.Context, engine, version string) {
	if err := s.redis.Set(ctx, "engine:"+engine+":version", version, engineVersionTTL).Err(); err != nil {
		s.logger.Warnw("Failed to memoize engine version", "engine", engine, "error", err)
	}
}

// UpsertDifficulty inserts or updates the row keyed by
// (beatmap_id, mods, engine). The update is a compare-and-set on the
// version sequence: an older version racing a fresh recompute can never
// regress the stored version. Calling twice with the same key and version
// never creates a duplicate row.
func (s *Store) UpsertDifficulty(ctx context.Context, beatmapID string, mods models.Mods, engine, version string) (*models.DifficultyCalculation, error) {
	calc := &models.DifficultyCalculation{
		BeatmapID: beatmapID,
		Mods:      mods,
		Engine:    engine,
	}
	err := s.pg.QueryRow(ctx, `
		INSERT INTO difficulty_calculations AS dc (beatmap_id, mods, engine, version, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (beatmap_id, mods, engine) DO UPDATE
		SET version = EXCLUDED.version, updated_at = NOW()
		WHERE dc.version <> EXCLUDED.version
		  AND COALESCE((SELECT ev.seq FROM engine_versions ev WHERE ev.engine = dc.engine AND ev.version = dc.version), 0)
		   <= COALESCE((SELECT ev.seq FROM engine_versions ev WHERE ev.engine = dc.engine AND ev.version = EXCLUDED.version), 0)
		RETURNING id, version, updated_at
	`, beatmapID, int64(mods), engine, version).Scan(&calc.ID, &calc.Version, &calc.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// CAS declined the update: the stored row is same-or-newer.
		err = s.pg.QueryRow(ctx, `
			SELECT id, version, updated_at FROM difficulty_calculations
			WHERE beatmap_id = $1 AND mods = $2 AND engine = $3
		`, beatmapID, int64(mods), engine).Scan(&calc.ID, &calc.Version, &calc.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert difficulty calculation: %w", err)
	}
	return calc, nil
}

// UpsertPerformance inserts or updates the row keyed by
// (score_id, engine), referencing the difficulty calculation matching the
// score's beatmap+mods. Same CAS semantics as UpsertDifficulty.
func (s *Store) UpsertPerformance(ctx context.Context, scoreID, difficultyCalcID int64, engine, version string) (*models.PerformanceCalculation, error) {
	calc := &models.PerformanceCalculation{
		ScoreID:                 scoreID,
		DifficultyCalculationID: difficultyCalcID,
		Engine:                  engine,
	}
	err := s.pg.QueryRow(ctx, `
		INSERT INTO performance_calculations AS pc (score_id, difficulty_calculation_id, engine, version, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (score_id, engine) DO UPDATE
		SET version = EXCLUDED.version, difficulty_calculation_id = EXCLUDED.difficulty_calculation_id, updated_at = NOW()
		WHERE pc.version <> EXCLUDED.version
		  AND COALESCE((SELECT ev.seq FROM engine_versions ev WHERE ev.engine = pc.engine AND ev.version = pc.version), 0)
		   <= COALESCE((SELECT ev.seq FROM engine_versions ev WHERE ev.engine = pc.engine AND ev.version = EXCLUDED.version), 0)
		RETURNING id, version, updated_at
	`, scoreID, difficultyCalcID, engine, version).Scan(&calc.ID, &calc.Version, &calc.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pg.QueryRow(ctx, `
			SELECT id, version, updated_at FROM performance_calculations
			WHERE score_id = $1 AND engine = $2
		`, scoreID, engine).Scan(&calc.ID, &calc.Version, &calc.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert performance calculation: %w", err)
	}
	return calc, nil
}

// UpsertDifficultyValues bulk-upserts named scalar values for one
// difficulty calculation. Keyed by (calculation_id, name) so re-running
// is a pure no-op once up to date.
func (s *Store) UpsertDifficultyValues(ctx context.Context, calcID int64, values map[string]float64) error {
	return s.upsertValues(ctx, "difficulty_values", calcID, values)
}

// UpsertPerformanceValues bulk-upserts named scalar values for one
// performance calculation.
func (s *Store) UpsertPerformanceValues(ctx context.Context, calcID int64, values map[string]float64) error {
	return s.upsertValues(ctx, "performance_values", calcID, values)
}

func (s *Store) upsertValues(ctx context.Context, table string, calcID int64, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (calculation_id, name, value) VALUES ", table)
	args := []interface{}{}
	i := 0
	for name, value := range values {
		n := i * 3
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, calcID, name, value)
		i++
	}
	sb.WriteString(" ON CONFLICT (calculation_id, name) DO UPDATE SET value = EXCLUDED.value")

	if _, err := s.pg.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("bulk upsert %s: %w", table, err)
	}
	return nil
}

// ClearDifficultyValues removes all values of a calculation. Used when a
// version bump invalidates the previous value set before the new one is
// written.
func (s *Store) ClearDifficultyValues(ctx context.Context, calcID int64) error {
	_, err := s.pg.Exec(ctx, `DELETE FROM difficulty_values WHERE calculation_id = $1`, calcID)
	return err
}

// ClearPerformanceValues removes all values of a performance calculation.
func (s *Store) ClearPerformanceValues(ctx context.Context, calcID int64) error {
	_, err := s.pg.Exec(ctx, `DELETE FROM performance_values WHERE calculation_id = $1`, calcID)
	return err
}

// StaleDifficultyPairs filters the candidate (beatmap, mods) pairs down
// to those lacking a fresh difficulty row for the engine at the given
// version. A row with zero associated values counts as failed and is
// therefore stale.
func (s *Store) StaleDifficultyPairs(ctx context.Context, pairs []BeatmapMods, engine, version string) ([]BeatmapMods, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.BeatmapID)
	}

	rows, err := s.pg.Query(ctx, `
		SELECT dc.beatmap_id, dc.mods
		FROM difficulty_calculations dc
		WHERE dc.engine = $1 AND dc.version = $2
		  AND dc.beatmap_id = ANY($3)
		  AND EXISTS (SELECT 1 FROM difficulty_values dv WHERE dv.calculation_id = dc.id)
	`, engine, version, ids)
	if err != nil {
		return nil, fmt.Errorf("query fresh difficulty rows: %w", err)
	}
	defer rows.Close()

	fresh := make(map[BeatmapMods]bool, len(pairs))
	for rows.Next() {
		var beatmapID string
		var mods int64
		if err := rows.Scan(&beatmapID, &mods); err != nil {
			continue
		}
		fresh[BeatmapMods{BeatmapID: beatmapID, Mods: models.Mods(mods)}] = true
	}

	var stale []BeatmapMods
	for _, p := range pairs {
		if !fresh[p] {
			stale = append(stale, p)
		}
	}
	return stale, nil
}

// StaleScoreIDs filters the candidate score ids down to those lacking a
// fresh performance row for the engine at the given version.
func (s *Store) StaleScoreIDs(ctx context.Context, scoreIDs []int64, engine, version string) ([]int64, error) {
	if len(scoreIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pg.Query(ctx, `
		SELECT pc.score_id
		FROM performance_calculations pc
		WHERE pc.engine = $1 AND pc.version = $2
		  AND pc.score_id = ANY($3)
		  AND EXISTS (SELECT 1 FROM performance_values pv WHERE pv.calculation_id = pc.id)
	`, engine, version, scoreIDs)
	if err != nil {
		return nil, fmt.Errorf("query fresh performance rows: %w", err)
	}
	defer rows.Close()

	fresh := make(map[int64]bool, len(scoreIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		fresh[id] = true
	}

	var stale []int64
	for _, id := range scoreIDs {
		if !fresh[id] {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// DifficultyCalcID resolves the id of the difficulty row for a
// beatmap+mods pair under an engine, regardless of version.
func (s *Store) DifficultyCalcID(ctx context.Context, beatmapID string, mods models.Mods, engine string) (int64, error) {
	var id int64
	err := s.pg.QueryRow(ctx, `
		SELECT id FROM difficulty_calculations
		WHERE beatmap_id = $1 AND mods = $2 AND engine = $3
	`, beatmapID, int64(mods), engine).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve difficulty calculation: %w", err)
	}
	return id, nil
}

// MarkFailed records a calculation key in the per-engine retry set so the
// next recompute pass can target it cheaply.
func (s *Store) MarkFailed(ctx context.Context, engine, key string) {
	if err := s.redis.SAdd(ctx, "calc:failed:"+engine, key).Err(); err != nil {
		s.logger.Warnw("Failed to mark calculation as failed", "engine", engine, "key", key, "error", err)
	}
}

// ClearFailed removes a calculation key from the retry set after it
// succeeds.
func (s *Store) ClearFailed(ctx context.Context, engine, key string) {
	if err := s.redis.SRem(ctx, "calc:failed:"+engine, key).Err(); err != nil {
		s.logger.Warnw("Failed to clear failed calculation", "engine", engine, "key", key, "error", err)
	}
}
