// Package worker implements the buffered worker pool behind the engine's
// async work: recalculation passes, membership recomputes and the
// ClickHouse analytics batcher. It decouples HTTP request handling from
// the slow paths and guarantees a final flush on shutdown.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/logic"
	"github.com/rhythmstats/ranking-api/internal/models"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_worker_jobs_total",
		Help: "Jobs processed by the worker pool, by kind and outcome",
	}, []string{"kind", "outcome"})

	jobsLoadShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ranking_worker_jobs_load_shed_total",
		Help: "Jobs dropped because the pool was stopping",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ranking_worker_queue_depth",
		Help: "Current depth of the worker job queue",
	})

	eventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ranking_score_events_ingested_total",
		Help: "Analytics events accepted for the ClickHouse batcher",
	})

	batchInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ranking_batch_insert_duration_seconds",
		Help:    "Duration of analytics batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)

type jobKind int

const (
	jobScoreRecalc jobKind = iota
	jobBeatmapRecalc
	jobMembershipUpdate
)

func (k jobKind) String() string {
	switch k {
	case jobScoreRecalc:
		return "score_recalc"
	case jobBeatmapRecalc:
		return "beatmap_recalc"
	case jobMembershipUpdate:
		return "membership_update"
	default:
		return "unknown"
	}
}

// Job is one unit of background work.
type Job struct {
	kind          jobKind
	engine        string
	scoreIDs      []int64
	pairs         []cache.BeatmapMods
	leaderboardID int64
	userID        int64
}

// Recalculator is the cache refresh pass the pool drives.
type Recalculator interface {
	EngineVersion(ctx context.Context, engine string) (string, error)
	RecalculateScores(ctx context.Context, engine string, scores []*models.Score) error
	RecalculateBeatmaps(ctx context.Context, engine string, pairs []cache.BeatmapMods) error
}

// ScoreSource loads hydrated scores for recalculation jobs.
type ScoreSource interface {
	ScoresByIDs(ctx context.Context, ids []int64, engine, version string) ([]*models.Score, error)
}

// MembershipUpdater recomputes memberships after calculations land.
type MembershipUpdater interface {
	UpdateMembership(ctx context.Context, leaderboardID, userID int64) (*models.Membership, error)
	UserLeaderboardIDs(ctx context.Context, userID int64, gamemode models.Gamemode) ([]int64, error)
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration

	ClickHouse  driver.Conn
	Recalc      Recalculator
	Scores      ScoreSource
	Memberships MembershipUpdater
	Logger      *zap.SugaredLogger
}

// Pool manages the worker goroutines and the analytics batcher.
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	events   chan models.ScoreEvent
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		events:   make(chan models.ScoreEvent, cfg.QueueSize),
		logger:   cfg.Logger,
	}
}

// Start launches the workers and the analytics batcher.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.batcher()

	go p.reportQueueDepth()

	p.logger.Infow("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop drains the queues and waits for the final analytics flush.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")
	p.cancel()
	close(p.jobQueue)
	close(p.events)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// QueueDepth returns the current job queue size.
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// EnqueueScoreRecalc queues a cache refresh for the given scores,
// followed by membership recomputes for the affected users.
func (p *Pool) EnqueueScoreRecalc(engine string, scoreIDs []int64) bool {
	if len(scoreIDs) == 0 {
		return true
	}
	return p.enqueue(Job{kind: jobScoreRecalc, engine: engine, scoreIDs: scoreIDs})
}

// EnqueueBeatmapRecalc queues a difficulty-only refresh for beatmap+mods
// pairs.
func (p *Pool) EnqueueBeatmapRecalc(engine string, pairs []cache.BeatmapMods) bool {
	if len(pairs) == 0 {
		return true
	}
	return p.enqueue(Job{kind: jobBeatmapRecalc, engine: engine, pairs: pairs})
}

// EnqueueMembershipUpdate queues one membership recompute.
func (p *Pool) EnqueueMembershipUpdate(leaderboardID, userID int64) bool {
	return p.enqueue(Job{kind: jobMembershipUpdate, leaderboardID: leaderboardID, userID: userID})
}

func (p *Pool) enqueue(job Job) (ok bool) {
	// Protect against sending on a closed channel during shutdown.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnw("Failed to enqueue job (pool stopped)", "kind", job.kind.String())
			ok = false
		}
	}()

	select {
	case p.jobQueue <- job:
		return true
	case <-p.ctx.Done():
		jobsLoadShed.Inc()
		return false
	}
}

// EnqueueScoreEvent hands an analytics row to the ClickHouse batcher.
func (p *Pool) EnqueueScoreEvent(ev models.ScoreEvent) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if ev.EventID == uuid.Nil {
		ev.EventID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	select {
	case p.events <- ev:
		eventsIngested.Inc()
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		if err := p.process(p.ctx, job); err != nil {
			p.logger.Errorw("Job failed",
				"worker", id,
				"kind", job.kind.String(),
				"error", err,
			)
			jobsProcessed.WithLabelValues(job.kind.String(), "failed").Inc()
			continue
		}
		jobsProcessed.WithLabelValues(job.kind.String(), "ok").Inc()
	}
}

func (p *Pool) process(ctx context.Context, job Job) error {
	switch job.kind {
	case jobScoreRecalc:
		return p.processScoreRecalc(ctx, job)
	case jobBeatmapRecalc:
		return p.config.Recalc.RecalculateBeatmaps(ctx, job.engine, job.pairs)
	case jobMembershipUpdate:
		_, err := p.config.Memberships.UpdateMembership(ctx, job.leaderboardID, job.userID)
		if errors.Is(err, logic.ErrLeaderboardArchived) || errors.Is(err, logic.ErrLeaderboardNotFound) {
			// The board went away between enqueue and processing.
			return nil
		}
		return err
	}
	return nil
}

// processScoreRecalc refreshes the cache for the given scores and fans
// out membership recomputes for every affected user's leaderboards.
func (p *Pool) processScoreRecalc(ctx context.Context, job Job) error {
	version, err := p.config.Recalc.EngineVersion(ctx, job.engine)
	if err != nil {
		return err
	}

	scores, err := p.config.Scores.ScoresByIDs(ctx, job.scoreIDs, job.engine, version)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return nil
	}

	if err := p.config.Recalc.RecalculateScores(ctx, job.engine, scores); err != nil {
		return err
	}

	type userMode struct {
		userID   int64
		gamemode models.Gamemode
	}
	seen := make(map[userMode]bool)
	for _, score := range scores {
		key := userMode{userID: score.UserID, gamemode: score.Gamemode}
		if seen[key] {
			continue
		}
		seen[key] = true

		leaderboardIDs, err := p.config.Memberships.UserLeaderboardIDs(ctx, key.userID, key.gamemode)
		if err != nil {
			p.logger.Warnw("Failed to list memberships for fan-out",
				"user_id", key.userID, "error", err)
			continue
		}
		for _, leaderboardID := range leaderboardIDs {
			p.EnqueueMembershipUpdate(leaderboardID, key.userID)
		}
	}
	return nil
}

// batcher accumulates analytics events and bulk-inserts them into
// ClickHouse on size or interval, with a final flush at shutdown.
func (p *Pool) batcher() {
	defer p.wg.Done()

	batch := make([]models.ScoreEvent, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := p.insertEvents(batch); err != nil {
			p.logger.Errorw("Analytics batch insert failed",
				"batchSize", len(batch),
				"error", err,
			)
		}
		batchInsertDuration.Observe(time.Since(start).Seconds())
		batch = batch[:0]
	}

	for {
		select {
		case ev, open := <-p.events:
			if !open {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *Pool) insertEvents(batch []models.ScoreEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chBatch, err := p.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO ranking.score_events (
			timestamp, event_id, event_type, user_id, score_id, beatmap_id,
			gamemode, mods, accuracy, pp, engine, version
		)
	`)
	if err != nil {
		return err
	}

	for _, ev := range batch {
		err := chBatch.Append(
			ev.Timestamp,
			ev.EventID,
			ev.EventType,
			ev.UserID,
			ev.ScoreID,
			ev.BeatmapID,
			ev.Gamemode,
			ev.Mods,
			ev.Accuracy,
			ev.PP,
			ev.Engine,
			ev.Version,
		)
		if err != nil {
			p.logger.Warnw("Failed to append event to batch",
				"event_type", ev.EventType, "error", err)
		}
	}
	return chBatch.Send()
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}
