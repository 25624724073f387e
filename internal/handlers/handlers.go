package handlers

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/models"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// ScoreStore ingests score submissions and answers recalculation scoping
// queries.
type ScoreStore interface {
	CreateScore(ctx context.Context, sub *models.ScoreSubmission) (*models.Score, bool, error)
	UserScoreIDs(ctx context.Context, userID int64, gamemode models.Gamemode) ([]int64, error)
	BeatmapModPairs(ctx context.Context, beatmapIDs []string) ([]cache.BeatmapMods, error)
}

// MembershipEngine is the leaderboard membership engine surface the API
// exposes.
type MembershipEngine interface {
	Join(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error)
	UpdateMembership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error)
	Leave(ctx context.Context, leaderboardID, userID int64) error
	Membership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error)
	AggregateTotal(ctx context.Context, userID int64, gamemode models.Gamemode, policy models.ScoreSet) (float64, error)
}

// LeaderboardStore owns leaderboard and invite rows.
type LeaderboardStore interface {
	Create(ctx context.Context, req *models.CreateLeaderboardRequest) (*models.Leaderboard, error)
	Get(ctx context.Context, id int64) (*models.Leaderboard, error)
	List(ctx context.Context, gamemode models.Gamemode) ([]*models.Leaderboard, error)
	Archive(ctx context.Context, id, requesterID int64) error
	Delete(ctx context.Context, id, requesterID int64) error
	Members(ctx context.Context, leaderboardID int64, limit int) ([]*models.Membership, error)
	Invite(ctx context.Context, leaderboardID, requesterID int64, req *models.InviteRequest) (*models.Invite, error)
	Invites(ctx context.Context, leaderboardID int64) ([]*models.Invite, error)
}

// WorkQueue defines the interface for the background worker pool.
type WorkQueue interface {
	EnqueueScoreRecalc(engine string, scoreIDs []int64) bool
	EnqueueBeatmapRecalc(engine string, pairs []cache.BeatmapMods) bool
	EnqueueMembershipUpdate(leaderboardID, userID int64) bool
	EnqueueScoreEvent(ev models.ScoreEvent) bool
	QueueDepth() int
}

type Config struct {
	WorkerPool WorkQueue
	Postgres   *pgxpool.Pool
	ClickHouse driver.Conn
	Redis      *redis.Client
	Logger     *zap.SugaredLogger

	// Services
	Scores       ScoreStore
	Memberships  MembershipEngine
	Leaderboards LeaderboardStore

	AllowedOrigins []string
}

type Handler struct {
	pool         WorkQueue
	pg           *pgxpool.Pool
	ch           driver.Conn
	redis        *redis.Client
	logger       *zap.SugaredLogger
	validator    *validator.Validate
	scores       ScoreStore
	memberships  MembershipEngine
	leaderboards LeaderboardStore
	origins      []string
}

func New(cfg Config) *Handler {
	return &Handler{
		pool:         cfg.WorkerPool,
		pg:           cfg.Postgres,
		ch:           cfg.ClickHouse,
		redis:        cfg.Redis,
		logger:       cfg.Logger,
		validator:    validator.New(),
		scores:       cfg.Scores,
		memberships:  cfg.Memberships,
		leaderboards: cfg.Leaderboards,
		origins:      cfg.AllowedOrigins,
	}
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scores", h.SubmitScore)
		r.Post("/recalculate", h.Recalculate)

		r.Route("/leaderboards", func(r chi.Router) {
			r.Post("/", h.CreateLeaderboard)
			r.Get("/", h.ListLeaderboards)

			r.Route("/{leaderboardID}", func(r chi.Router) {
				r.Get("/", h.GetLeaderboard)
				r.Delete("/", h.DeleteLeaderboard)
				r.Post("/archive", h.ArchiveLeaderboard)

				r.Get("/members", h.ListMembers)
				r.Post("/members", h.JoinLeaderboard)
				r.Get("/members/{userID}", h.GetMembership)
				r.Delete("/members/{userID}", h.LeaveLeaderboard)

				r.Get("/invites", h.ListInvites)
				r.Post("/invites", h.CreateInvite)
			})
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/total", h.UserTotal)
			r.Get("/pp-history", h.PPHistory)
		})
	})

	return r
}
