package logic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// LeaderboardService owns the leaderboard and invite rows.
type LeaderboardService struct {
	pg     PgPool
	logger *zap.SugaredLogger
}

func NewLeaderboardService(pg PgPool, logger *zap.SugaredLogger) *LeaderboardService {
	return &LeaderboardService{pg: pg, logger: logger}
}

const leaderboardColumns = `id, name, description, gamemode, score_set, access_type, owner_id,
	allow_past_scores, archived, decay, notify_channel, filter, member_count, created_at`

func scanLeaderboard(row pgx.Row) (*models.Leaderboard, error) {
	lb := &models.Leaderboard{}
	var filter []byte
	err := row.Scan(&lb.ID, &lb.Name, &lb.Description, &lb.Gamemode, &lb.ScoreSet, &lb.Access,
		&lb.OwnerID, &lb.AllowPastScores, &lb.Archived, &lb.Decay, &lb.NotifyChannel,
		&filter, &lb.MemberCount, &lb.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &lb.Filter); err != nil {
			return nil, fmt.Errorf("decode leaderboard filter: %w", err)
		}
	}
	return lb, nil
}

func leaderboardByID(ctx context.Context, q Querier, id int64) (*models.Leaderboard, error) {
	lb, err := scanLeaderboard(q.QueryRow(ctx,
		`SELECT `+leaderboardColumns+` FROM leaderboards WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeaderboardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load leaderboard %d: %w", id, err)
	}
	return lb, nil
}

// Create inserts a new leaderboard owned by the requester.
func (s *LeaderboardService) Create(ctx context.Context, req *models.CreateLeaderboardRequest) (*models.Leaderboard, error) {
	filter, err := json.Marshal(req.Filter)
	if err != nil {
		return nil, fmt.Errorf("encode score filter: %w", err)
	}

	allowPast := true
	if req.AllowPastScores != nil {
		allowPast = *req.AllowPastScores
	}

	lb := &models.Leaderboard{
		Name:            req.Name,
		Description:     req.Description,
		Gamemode:        models.Gamemode(req.Gamemode),
		ScoreSet:        models.ScoreSet(req.ScoreSet),
		Access:          models.AccessType(req.AccessType),
		OwnerID:         req.OwnerID,
		AllowPastScores: allowPast,
		Decay:           req.Decay,
		NotifyChannel:   req.NotifyChannel,
		Filter:          req.Filter,
	}
	err = s.pg.QueryRow(ctx, `
		INSERT INTO leaderboards
			(name, description, gamemode, score_set, access_type, owner_id,
			 allow_past_scores, archived, decay, notify_channel, filter, member_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9, $10, 0, NOW())
		RETURNING id, created_at`,
		lb.Name, lb.Description, lb.Gamemode, lb.ScoreSet, lb.Access, lb.OwnerID,
		lb.AllowPastScores, lb.Decay, lb.NotifyChannel, filter).
		Scan(&lb.ID, &lb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert leaderboard: %w", err)
	}

	s.logger.Infow("Created leaderboard", "leaderboard_id", lb.ID, "name", lb.Name, "owner_id", lb.OwnerID)
	return lb, nil
}

// Get loads one leaderboard.
func (s *LeaderboardService) Get(ctx context.Context, id int64) (*models.Leaderboard, error) {
	return leaderboardByID(ctx, s.pg, id)
}

// List returns the non-private leaderboards for a gamemode, newest first.
func (s *LeaderboardService) List(ctx context.Context, gamemode models.Gamemode) ([]*models.Leaderboard, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT `+leaderboardColumns+`
		FROM leaderboards
		WHERE gamemode = $1 AND access_type <> $2
		ORDER BY created_at DESC`,
		gamemode, models.AccessPrivate)
	if err != nil {
		return nil, fmt.Errorf("query leaderboards: %w", err)
	}
	defer rows.Close()

	var boards []*models.Leaderboard
	for rows.Next() {
		lb, err := scanLeaderboard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, lb)
	}
	return boards, rows.Err()
}

// Archive freezes a leaderboard; archived boards never recompute.
// Owner-only.
func (s *LeaderboardService) Archive(ctx context.Context, id, requesterID int64) error {
	return s.ownerUpdate(ctx, id, requesterID,
		`UPDATE leaderboards SET archived = true WHERE id = $1`)
}

// Delete removes a leaderboard and, via cascade, its memberships,
// contributions and invites. Owner-only.
func (s *LeaderboardService) Delete(ctx context.Context, id, requesterID int64) error {
	return s.ownerUpdate(ctx, id, requesterID,
		`DELETE FROM leaderboards WHERE id = $1`)
}

func (s *LeaderboardService) ownerUpdate(ctx context.Context, id, requesterID int64, sql string) error {
	lb, err := leaderboardByID(ctx, s.pg, id)
	if err != nil {
		return err
	}
	if lb.OwnerID != requesterID {
		return ErrNotOwner
	}
	if _, err := s.pg.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("update leaderboard %d: %w", id, err)
	}
	return nil
}

// Members returns a leaderboard's memberships ordered by total descending.
func (s *LeaderboardService) Members(ctx context.Context, leaderboardID int64, limit int) ([]*models.Membership, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.pg.Query(ctx, `
		SELECT id, leaderboard_id, user_id, pp, score_count, rank, joined_at
		FROM memberships
		WHERE leaderboard_id = $1
		ORDER BY pp DESC, id
		LIMIT $2`,
		leaderboardID, limit)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(&m.ID, &m.LeaderboardID, &m.UserID, &m.PP, &m.ScoreCount, &m.Rank, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberUserIDs returns every member's user id, for recompute fan-out.
func (s *LeaderboardService) MemberUserIDs(ctx context.Context, leaderboardID int64) ([]int64, error) {
	rows, err := s.pg.Query(ctx,
		`SELECT user_id FROM memberships WHERE leaderboard_id = $1`, leaderboardID)
	if err != nil {
		return nil, fmt.Errorf("query member ids: %w", err)
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

// Invite records an accepted invite for a user on a restricted
// leaderboard. Owner-only; invites to open leaderboards are pointless but
// harmless.
func (s *LeaderboardService) Invite(ctx context.Context, leaderboardID, requesterID int64, req *models.InviteRequest) (*models.Invite, error) {
	lb, err := leaderboardByID(ctx, s.pg, leaderboardID)
	if err != nil {
		return nil, err
	}
	if lb.OwnerID != requesterID {
		return nil, ErrNotOwner
	}

	inv := &models.Invite{
		LeaderboardID: leaderboardID,
		UserID:        req.UserID,
		Message:       req.Message,
		Accepted:      true,
	}
	err = s.pg.QueryRow(ctx, `
		INSERT INTO invites (leaderboard_id, user_id, message, accepted, created_at)
		VALUES ($1, $2, $3, true, NOW())
		ON CONFLICT (leaderboard_id, user_id) DO UPDATE SET message = EXCLUDED.message
		RETURNING id, created_at`,
		leaderboardID, req.UserID, req.Message).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	return inv, nil
}

// Invites lists a leaderboard's outstanding invites.
func (s *LeaderboardService) Invites(ctx context.Context, leaderboardID int64) ([]*models.Invite, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT id, leaderboard_id, user_id, message, accepted, created_at
		FROM invites WHERE leaderboard_id = $1 ORDER BY created_at`,
		leaderboardID)
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		inv := &models.Invite{}
		if err := rows.Scan(&inv.ID, &inv.LeaderboardID, &inv.UserID, &inv.Message, &inv.Accepted, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}
