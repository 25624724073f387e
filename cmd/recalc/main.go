// Command recalc runs a full offline recalculation sweep: refresh every
// cached calculation at the live engine versions, then recompute every
// membership. Intended for engine upgrades and disaster recovery.
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/calculator"
	"github.com/rhythmstats/ranking-api/internal/config"
	"github.com/rhythmstats/ranking-api/internal/database"
	"github.com/rhythmstats/ranking-api/internal/logic"
	"github.com/rhythmstats/ranking-api/internal/models"
	"github.com/rhythmstats/ranking-api/internal/notify"
)

var gamemodes = map[string]models.Gamemode{
	"standard": models.GamemodeStandard,
	"taiko":    models.GamemodeTaiko,
	"catch":    models.GamemodeCatch,
	"mania":    models.GamemodeMania,
}

func main() {
	modeFlag := flag.String("gamemode", "all", "gamemode to sweep (standard, taiko, catch, mania, all)")
	scoresOnly := flag.Bool("scores-only", false, "refresh calculations without recomputing memberships")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	ctx := context.Background()

	pg, err := database.ConnectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalw("Postgres connection failed", "error", err)
	}
	defer pg.Close()

	rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatalw("Redis connection failed", "error", err)
	}
	defer rdb.Close()

	reporter := notify.NewZapReporter(logger)
	registry := calculator.NewRegistryFromConfig(cfg.Engines, cfg.CalcTimeout)
	calcClient := calculator.NewClient(registry, reporter, logger, cfg.CalcBatchSize)
	store := cache.NewStore(pg, rdb, logger)
	recalc := cache.NewRecalculator(store, calcClient, logger)

	scores := logic.NewScoreService(pg, logger)
	mutations := logic.NewMutationService(logger)
	memberships := logic.NewMembershipService(pg, recalc, scores, mutations,
		notify.NopSink{}, reporter, logger)

	var targets []models.Gamemode
	if *modeFlag == "all" {
		for _, gm := range gamemodes {
			targets = append(targets, gm)
		}
	} else {
		gm, ok := gamemodes[strings.ToLower(*modeFlag)]
		if !ok {
			logger.Fatalw("Unknown gamemode", "gamemode", *modeFlag)
		}
		targets = []models.Gamemode{gm}
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, gm := range targets {
		gm := gm
		g.Go(func() error {
			if err := sweep(gctx, logger, gm, scores, recalc, memberships, *scoresOnly); err != nil {
				logger.Errorw("Sweep failed", "gamemode", gm.String(), "error", err)
			}
			return nil
		})
	}
	g.Wait()
	logger.Infow("Recalculation sweep finished", "elapsed", time.Since(started))
}

func sweep(
	ctx context.Context,
	logger *zap.SugaredLogger,
	gm models.Gamemode,
	scores *logic.ScoreService,
	recalc *cache.Recalculator,
	memberships *logic.MembershipService,
	scoresOnly bool,
) error {
	engine := gm.String()
	version, err := recalc.EngineVersion(ctx, engine)
	if err != nil {
		return err
	}
	logger.Infow("Sweeping gamemode", "gamemode", engine, "version", version)

	userIDs, err := scores.UserIDsWithScores(ctx, gm)
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		ids, err := scores.UserScoreIDs(ctx, userID, gm)
		if err != nil {
			return err
		}
		hydrated, err := scores.ScoresByIDs(ctx, ids, engine, version)
		if err != nil {
			return err
		}
		if err := recalc.RecalculateScores(ctx, engine, hydrated); err != nil {
			logger.Errorw("Score recalculation failed", "user_id", userID, "error", err)
			continue
		}

		if scoresOnly {
			continue
		}
		boardIDs, err := memberships.UserLeaderboardIDs(ctx, userID, gm)
		if err != nil {
			return err
		}
		for _, boardID := range boardIDs {
			if _, err := memberships.UpdateMembership(ctx, boardID, userID); err != nil {
				logger.Errorw("Membership update failed",
					"leaderboard_id", boardID, "user_id", userID, "error", err)
			}
		}
	}

	logger.Infow("Gamemode sweep complete", "gamemode", engine, "users", len(userIDs))
	return nil
}
