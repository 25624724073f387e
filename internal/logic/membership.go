package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/models"
	"github.com/rhythmstats/ranking-api/internal/notify"
)

var membershipUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ranking_membership_updates_total",
	Help: "Membership recomputations, by outcome",
}, []string{"outcome"})

// MembershipService runs the leaderboard membership engine: resolving a
// user's qualifying score set for a leaderboard and recomputing the
// membership's derived fields inside one transaction.
type MembershipService struct {
	pg        PgPool
	versions  VersionSource
	scores    *ScoreService
	mutations *MutationService
	sink      notify.Sink
	reporter  notify.ErrorReporter
	queue     RecalcQueue
	logger    *zap.SugaredLogger
}

func NewMembershipService(
	pg PgPool,
	versions VersionSource,
	scores *ScoreService,
	mutations *MutationService,
	sink notify.Sink,
	reporter notify.ErrorReporter,
	logger *zap.SugaredLogger,
) *MembershipService {
	return &MembershipService{
		pg:        pg,
		versions:  versions,
		scores:    scores,
		mutations: mutations,
		sink:      sink,
		reporter:  reporter,
		logger:    logger,
	}
}

// SetRecalcQueue wires the deferred recalculation queue. Optional; without
// it, freshly created mutations wait for the next sweep.
func (s *MembershipService) SetRecalcQueue(queue RecalcQueue) {
	s.queue = queue
}

// Join adds a user to a leaderboard and computes their initial standing.
// It is the same operation as UpdateMembership; the membership is created
// on first call.
func (s *MembershipService) Join(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	return s.UpdateMembership(ctx, leaderboardID, userID)
}

// UpdateMembership recomputes one membership from the user's current
// qualifying scores. Idempotent: repeated calls without intervening score
// changes produce identical pp, score_count and rank. Concurrent updates
// for the same (leaderboard, user) serialize on an advisory lock.
func (s *MembershipService) UpdateMembership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin membership update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`,
		leaderboardID, userID); err != nil {
		return nil, fmt.Errorf("acquire membership lock: %w", err)
	}

	lb, err := leaderboardByID(ctx, tx, leaderboardID)
	if err != nil {
		return nil, err
	}

	if lb.Archived {
		m, err := membershipRow(ctx, tx, leaderboardID, userID)
		if errors.Is(err, ErrMembershipNotFound) {
			return nil, ErrLeaderboardArchived
		}
		if err != nil {
			return nil, err
		}
		return m, tx.Commit(ctx)
	}

	m, isNew, err := s.resolveMembership(ctx, tx, lb, userID)
	if err != nil {
		return nil, err
	}

	// Pre-update notification state, read before anything moves.
	var prevRecord float64
	var prevTop int64
	if lb.NotifyChannel != "" {
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(ms.raw_pp), 0)
			FROM membership_scores ms
			JOIN memberships mb ON mb.id = ms.membership_id
			WHERE mb.leaderboard_id = $1`,
			leaderboardID).Scan(&prevRecord); err != nil {
			return nil, fmt.Errorf("read leaderboard record: %w", err)
		}
		err := tx.QueryRow(ctx, `
			SELECT user_id FROM memberships
			WHERE leaderboard_id = $1 AND pp > 0
			ORDER BY pp DESC, id
			LIMIT 1`,
			leaderboardID).Scan(&prevTop)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("read leaderboard top player: %w", err)
		}
	}

	engine := lb.Gamemode.String()
	version, err := s.versions.EngineVersion(ctx, engine)
	if err != nil {
		return nil, err
	}

	scores, err := s.scores.UserScores(ctx, tx, userID, lb.Gamemode, engine, version)
	if err != nil {
		return nil, err
	}

	var candidates []*models.Score
	for _, sc := range scores {
		if !lb.AllowPastScores && sc.CreatedAt.Before(m.JoinedAt) {
			continue
		}
		if !lb.Filter.Match(sc) {
			continue
		}
		candidates = append(candidates, sc)
	}

	// Policies that rank by no-choke totals materialize missing mutations
	// now; their calculations arrive asynchronously and the membership is
	// updated again once they do.
	var pendingRecalc []int64
	if lb.ScoreSet != models.ScoreSetNormal {
		for _, sc := range candidates {
			if !sc.Result.IsChoke() || sc.NoChokeTotal != nil {
				continue
			}
			mutation, _, err := s.mutations.EnsureNoChoke(ctx, tx, sc)
			if err != nil {
				s.reporter.Report("mutation", err, "score_id", sc.ID)
				continue
			}
			pendingRecalc = append(pendingRecalc, mutation.ID)
		}
	}

	ranked := SelectQualifying(candidates, lb.ScoreSet, lb.EffectiveDecay())
	if err := s.applyContributions(ctx, tx, m, ranked); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE memberships SET pp = $2, score_count = $3, updated_at = NOW() WHERE id = $1`,
		m.ID, m.PP, m.ScoreCount); err != nil {
		return nil, fmt.Errorf("update membership totals: %w", err)
	}

	// Ties share a rank: 1 + count of strictly greater totals.
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM memberships WHERE leaderboard_id = $1 AND pp > $2`,
		leaderboardID, m.PP).Scan(&m.Rank); err != nil {
		return nil, fmt.Errorf("compute rank: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE memberships SET rank = $2 WHERE id = $1`, m.ID, m.Rank); err != nil {
		return nil, fmt.Errorf("update rank: %w", err)
	}

	events := s.collectEvents(lb, m, ranked, prevRecord, prevTop)

	if err := tx.Commit(ctx); err != nil {
		membershipUpdates.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("commit membership update: %w", err)
	}
	membershipUpdates.WithLabelValues("ok").Inc()

	// Deferred side effects only run once the transaction is durable.
	s.flushEvents(ctx, events)
	if len(pendingRecalc) > 0 && s.queue != nil {
		s.queue.EnqueueScoreRecalc(engine, pendingRecalc)
	}

	if isNew {
		s.logger.Infow("Membership created",
			"leaderboard_id", leaderboardID,
			"user_id", userID,
			"pp", m.PP,
			"rank", m.Rank,
		)
	}
	return m, nil
}

// Leave removes a user's membership and its contribution rows.
func (s *MembershipService) Leave(ctx context.Context, leaderboardID, userID int64) error {
	tag, err := s.pg.Exec(ctx,
		`DELETE FROM memberships WHERE leaderboard_id = $1 AND user_id = $2`,
		leaderboardID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	if _, err := s.pg.Exec(ctx,
		`UPDATE leaderboards SET member_count = member_count - 1 WHERE id = $1 AND member_count > 0`,
		leaderboardID); err != nil {
		return fmt.Errorf("decrement member count: %w", err)
	}
	return nil
}

// Membership reads one membership row without recomputing it.
func (s *MembershipService) Membership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error) {
	return membershipRow(ctx, s.pg, leaderboardID, userID)
}

// AggregateTotal is the read-only convenience over the aggregator: the
// user's decay-weighted total for a gamemode under a policy, with no
// leaderboard filter applied.
func (s *MembershipService) AggregateTotal(ctx context.Context, userID int64, gamemode models.Gamemode, policy models.ScoreSet) (float64, error) {
	engine := gamemode.String()
	version, err := s.versions.EngineVersion(ctx, engine)
	if err != nil {
		return 0, err
	}
	scores, err := s.scores.UserScores(ctx, s.pg, userID, gamemode, engine, version)
	if err != nil {
		return 0, err
	}
	return Aggregate(scores, policy, models.DefaultDecay), nil
}

// UserLeaderboardIDs returns the leaderboards a user is a member of for a
// gamemode, for fan-out after new scores arrive.
func (s *MembershipService) UserLeaderboardIDs(ctx context.Context, userID int64, gamemode models.Gamemode) ([]int64, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT m.leaderboard_id
		FROM memberships m
		JOIN leaderboards l ON l.id = m.leaderboard_id
		WHERE m.user_id = $1 AND l.gamemode = $2 AND NOT l.archived`,
		userID, gamemode)
	if err != nil {
		return nil, fmt.Errorf("query user memberships: %w", err)
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

func membershipRow(ctx context.Context, q Querier, leaderboardID, userID int64) (*models.Membership, error) {
	m := &models.Membership{}
	err := q.QueryRow(ctx, `
		SELECT id, leaderboard_id, user_id, pp, score_count, rank, joined_at
		FROM memberships
		WHERE leaderboard_id = $1 AND user_id = $2`,
		leaderboardID, userID).
		Scan(&m.ID, &m.LeaderboardID, &m.UserID, &m.PP, &m.ScoreCount, &m.Rank, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return m, nil
}

// resolveMembership loads the membership or creates it, consuming an
// invite when the leaderboard is restricted.
func (s *MembershipService) resolveMembership(ctx context.Context, tx pgx.Tx, lb *models.Leaderboard, userID int64) (*models.Membership, bool, error) {
	m, err := membershipRow(ctx, tx, lb.ID, userID)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, ErrMembershipNotFound) {
		return nil, false, err
	}

	if lb.Access.Restricted() && userID != lb.OwnerID {
		var inviteID int64
		err := tx.QueryRow(ctx, `
			DELETE FROM invites
			WHERE leaderboard_id = $1 AND user_id = $2 AND accepted
			RETURNING id`,
			lb.ID, userID).Scan(&inviteID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrInviteRequired
		}
		if err != nil {
			return nil, false, fmt.Errorf("consume invite: %w", err)
		}
	}

	m = &models.Membership{LeaderboardID: lb.ID, UserID: userID}
	err = tx.QueryRow(ctx, `
		INSERT INTO memberships (leaderboard_id, user_id, pp, score_count, rank, joined_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, NOW(), NOW())
		RETURNING id, joined_at`,
		lb.ID, userID).Scan(&m.ID, &m.JoinedAt)
	if err != nil {
		return nil, false, fmt.Errorf("create membership: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE leaderboards SET member_count = member_count + 1 WHERE id = $1`, lb.ID); err != nil {
		return nil, false, fmt.Errorf("increment member count: %w", err)
	}
	return m, true, nil
}

// applyContributions diffs the qualifying set against the stored
// contribution rows and writes only the changes. Totals land on m.
func (s *MembershipService) applyContributions(ctx context.Context, tx pgx.Tx, m *models.Membership, ranked []RankedScore) error {
	existing := make(map[int64]float64)
	rows, err := tx.Query(ctx,
		`SELECT score_id, weighted_pp FROM membership_scores WHERE membership_id = $1`, m.ID)
	if err != nil {
		return fmt.Errorf("query contributions: %w", err)
	}
	for rows.Next() {
		var scoreID int64
		var weighted float64
		if err := rows.Scan(&scoreID, &weighted); err != nil {
			rows.Close()
			return err
		}
		existing[scoreID] = weighted
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	total := 0.0
	for _, rs := range ranked {
		total += rs.Weighted
		old, ok := existing[rs.Score.ID]
		delete(existing, rs.Score.ID)
		if ok && old == rs.Weighted {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO membership_scores (membership_id, score_id, raw_pp, weighted_pp)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (membership_id, score_id)
			DO UPDATE SET raw_pp = EXCLUDED.raw_pp, weighted_pp = EXCLUDED.weighted_pp`,
			m.ID, rs.Score.ID, rs.Value, rs.Weighted); err != nil {
			return fmt.Errorf("upsert contribution: %w", err)
		}
	}

	if len(existing) > 0 {
		stale := make([]int64, 0, len(existing))
		for scoreID := range existing {
			stale = append(stale, scoreID)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM membership_scores WHERE membership_id = $1 AND score_id = ANY($2)`,
			m.ID, stale); err != nil {
			return fmt.Errorf("delete stale contributions: %w", err)
		}
	}

	m.PP = total
	m.ScoreCount = len(ranked)
	return nil
}

// collectEvents compares pre-update record/top state against the new
// standing. Events are value types; nothing is sent until post-commit.
func (s *MembershipService) collectEvents(lb *models.Leaderboard, m *models.Membership, ranked []RankedScore, prevRecord float64, prevTop int64) []notify.Event {
	if lb.NotifyChannel == "" {
		return nil
	}

	var events []notify.Event
	var bestValue float64
	var bestScoreID int64
	for _, rs := range ranked {
		if rs.Value > bestValue {
			bestValue = rs.Value
			bestScoreID = rs.Score.ID
		}
	}
	if bestScoreID != 0 && bestValue > prevRecord {
		events = append(events, notify.Event{
			Kind:          notify.KindLeaderboardRecord,
			LeaderboardID: lb.ID,
			ScoreID:       bestScoreID,
			Channel:       lb.NotifyChannel,
			OccurredAt:    time.Now().UTC(),
		})
	}
	if m.Rank == 1 && m.PP > 0 && prevTop != m.UserID {
		events = append(events, notify.Event{
			Kind:          notify.KindLeaderboardTopPlayer,
			LeaderboardID: lb.ID,
			UserID:        m.UserID,
			Channel:       lb.NotifyChannel,
			OccurredAt:    time.Now().UTC(),
		})
	}
	return events
}

func (s *MembershipService) flushEvents(ctx context.Context, events []notify.Event) {
	if s.sink == nil {
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case notify.KindLeaderboardRecord:
			s.sink.NotifyLeaderboardRecord(ctx, ev.LeaderboardID, ev.ScoreID, ev.Channel)
		case notify.KindLeaderboardTopPlayer:
			s.sink.NotifyLeaderboardTopPlayer(ctx, ev.LeaderboardID, ev.UserID, ev.Channel)
		}
	}
}
