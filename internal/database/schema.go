package database

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema is applied idempotently on startup. Statements are
// ordered by dependency.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS beatmaps (
		id               TEXT PRIMARY KEY,
		gamemode         SMALLINT NOT NULL DEFAULT 0,
		status           SMALLINT NOT NULL DEFAULT 0,
		artist           TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		version          TEXT NOT NULL DEFAULT '',
		max_combo        INTEGER NOT NULL DEFAULT 0,
		difficulty_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		approved_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS scores (
		id              BIGSERIAL PRIMARY KEY,
		user_id         BIGINT NOT NULL,
		beatmap_id      TEXT NOT NULL REFERENCES beatmaps(id),
		gamemode        SMALLINT NOT NULL DEFAULT 0,
		mods            BIGINT NOT NULL DEFAULT 0,
		count_300       INTEGER NOT NULL DEFAULT 0,
		count_100       INTEGER NOT NULL DEFAULT 0,
		count_50        INTEGER NOT NULL DEFAULT 0,
		count_miss      INTEGER NOT NULL DEFAULT 0,
		combo           INTEGER NOT NULL DEFAULT 0,
		result          INTEGER NOT NULL DEFAULT 1,
		mutation        SMALLINT NOT NULL DEFAULT 0,
		source_score_id BIGINT REFERENCES scores(id) ON DELETE CASCADE,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	// One real play per user per instant; mutations are exempt.
	`CREATE UNIQUE INDEX IF NOT EXISTS scores_user_created_real
		ON scores (user_id, created_at) WHERE mutation = 0`,
	`CREATE UNIQUE INDEX IF NOT EXISTS scores_one_mutation_per_source
		ON scores (source_score_id, mutation) WHERE mutation <> 0`,
	`CREATE INDEX IF NOT EXISTS scores_user_gamemode ON scores (user_id, gamemode)`,
	`CREATE INDEX IF NOT EXISTS scores_beatmap ON scores (beatmap_id)`,

	`CREATE TABLE IF NOT EXISTS engine_versions (
		seq        BIGSERIAL PRIMARY KEY,
		engine     TEXT NOT NULL,
		version    TEXT NOT NULL,
		first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (engine, version)
	)`,

	`CREATE TABLE IF NOT EXISTS difficulty_calculations (
		id         BIGSERIAL PRIMARY KEY,
		beatmap_id TEXT NOT NULL REFERENCES beatmaps(id),
		mods       BIGINT NOT NULL DEFAULT 0,
		engine     TEXT NOT NULL,
		version    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (beatmap_id, mods, engine)
	)`,
	`CREATE TABLE IF NOT EXISTS difficulty_values (
		calculation_id BIGINT NOT NULL REFERENCES difficulty_calculations(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		value          DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (calculation_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS performance_calculations (
		id                        BIGSERIAL PRIMARY KEY,
		score_id                  BIGINT NOT NULL REFERENCES scores(id) ON DELETE CASCADE,
		difficulty_calculation_id BIGINT NOT NULL REFERENCES difficulty_calculations(id),
		engine                    TEXT NOT NULL,
		version                   TEXT NOT NULL,
		updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (score_id, engine)
	)`,
	`CREATE TABLE IF NOT EXISTS performance_values (
		calculation_id BIGINT NOT NULL REFERENCES performance_calculations(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		value          DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (calculation_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS leaderboards (
		id                BIGSERIAL PRIMARY KEY,
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		gamemode          SMALLINT NOT NULL DEFAULT 0,
		score_set         SMALLINT NOT NULL DEFAULT 0,
		access_type       SMALLINT NOT NULL DEFAULT 0,
		owner_id          BIGINT NOT NULL,
		allow_past_scores BOOLEAN NOT NULL DEFAULT TRUE,
		archived          BOOLEAN NOT NULL DEFAULT FALSE,
		decay             DOUBLE PRECISION NOT NULL DEFAULT 0,
		notify_channel    TEXT NOT NULL DEFAULT '',
		filter            JSONB NOT NULL DEFAULT '{}',
		member_count      INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS memberships (
		id             BIGSERIAL PRIMARY KEY,
		leaderboard_id BIGINT NOT NULL REFERENCES leaderboards(id) ON DELETE CASCADE,
		user_id        BIGINT NOT NULL,
		pp             DOUBLE PRECISION NOT NULL DEFAULT 0,
		score_count    INTEGER NOT NULL DEFAULT 0,
		rank           INTEGER NOT NULL DEFAULT 0,
		joined_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (leaderboard_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS memberships_ranking
		ON memberships (leaderboard_id, pp DESC)`,

	`CREATE TABLE IF NOT EXISTS membership_scores (
		membership_id BIGINT NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
		score_id      BIGINT NOT NULL REFERENCES scores(id) ON DELETE CASCADE,
		raw_pp        DOUBLE PRECISION NOT NULL DEFAULT 0,
		weighted_pp   DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (membership_id, score_id)
	)`,
	`CREATE INDEX IF NOT EXISTS membership_scores_score ON membership_scores (score_id)`,

	`CREATE TABLE IF NOT EXISTS invites (
		id             BIGSERIAL PRIMARY KEY,
		leaderboard_id BIGINT NOT NULL REFERENCES leaderboards(id) ON DELETE CASCADE,
		user_id        BIGINT NOT NULL,
		message        TEXT NOT NULL DEFAULT '',
		accepted       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (leaderboard_id, user_id)
	)`,
}

// clickhouseSchema backs the append-only score event stream.
var clickhouseSchema = []string{
	`CREATE DATABASE IF NOT EXISTS ranking`,
	`CREATE TABLE IF NOT EXISTS ranking.score_events (
		timestamp  DateTime64(3, 'UTC'),
		event_id   UUID,
		event_type LowCardinality(String),
		user_id    Int64,
		score_id   Int64,
		beatmap_id String,
		gamemode   LowCardinality(String),
		mods       LowCardinality(String),
		accuracy   Float64,
		pp         Float64,
		engine     LowCardinality(String),
		version    LowCardinality(String)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (user_id, timestamp)
	TTL toDateTime(timestamp) + INTERVAL 2 YEAR`,
}

// MigratePostgres applies the relational schema.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

// MigrateClickHouse creates the analytics database and event table.
func MigrateClickHouse(ctx context.Context, conn driver.Conn) error {
	for _, stmt := range clickhouseSchema {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply clickhouse schema: %w", err)
		}
	}
	return nil
}
