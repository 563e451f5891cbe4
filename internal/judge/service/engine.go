// Package service contains the judge engine: submission intake, the spilling
// FIFO queue, the worker pool and the per-submission evaluation pipeline.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/repository"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/sandbox"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/store"
	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/contextkey"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers        = 4
	defaultSpillThreshold = 512 * 1024
	idleQueuePollInterval = 50 * time.Millisecond
)

// Config holds engine dependencies and settings.
type Config struct {
	SandboxAddr    string
	SandboxTimeout time.Duration
	TestlibPath    string
	Workers        int
	SpillThreshold int
	Languages      sandbox.LanguageTable
	Store          *store.Store
	Loader         *problem.Loader
	Verdicts       *repository.VerdictRepository
}

// Engine drives submissions from intake to verdict.
type Engine struct {
	client   *sandbox.Client
	preparer *sandbox.Preparer
	loader   *problem.Loader
	store    *store.Store
	verdicts *repository.VerdictRepository

	queue          *jobQueue
	workers        int
	spillThreshold int
}

// NewEngine creates a judge engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SandboxAddr == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("sandbox address is required")
	}
	if cfg.Store == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("submission store is required")
	}
	if cfg.Loader == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("problem loader is required")
	}
	if cfg.Verdicts == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("verdict repository is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	// Zero is meaningful (spill every submission); negative selects the
	// default threshold.
	spill := cfg.SpillThreshold
	if spill < 0 {
		spill = defaultSpillThreshold
	}

	client := sandbox.NewClient(cfg.SandboxAddr, cfg.SandboxTimeout)
	langs := sandbox.DefaultLanguages().Merge(cfg.Languages)

	return &Engine{
		client:         client,
		preparer:       sandbox.NewPreparer(client, langs, cfg.TestlibPath),
		loader:         cfg.Loader,
		store:          cfg.Store,
		verdicts:       cfg.Verdicts,
		queue:          &jobQueue{},
		workers:        workers,
		spillThreshold: spill,
	}, nil
}

// Start launches the worker pool. The returned group finishes once ctx is
// cancelled and every worker has drained its current job.
func (e *Engine) Start(ctx context.Context) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		worker := i
		g.Go(func() error {
			e.runWorker(ctx, worker)
			return nil
		})
	}
	logger.Info(ctx, "judge workers started", zap.Int("workers", e.workers))
	return g
}

// Submit accepts one submission and returns its allocated id. The job only
// becomes visible to workers after its directory and meta record exist.
func (e *Engine) Submit(ctx context.Context, pid, language, code string) (int64, error) {
	if pid == "" {
		return 0, appErr.ValidationError("pid", "required")
	}
	if language == "" {
		return 0, appErr.ValidationError("language", "required")
	}
	if code == "" {
		return 0, appErr.New(appErr.CodeEmpty)
	}

	sid, err := e.store.NextID()
	if err != nil {
		return 0, err
	}
	e.verdicts.Publish(sid, model.Queued())

	if _, err := e.store.EnsureDirs(sid); err != nil {
		return 0, err
	}
	if err := e.store.WriteMeta(model.Meta{
		SID:         sid,
		PID:         pid,
		Language:    language,
		TimestampMS: time.Now().UnixMilli(),
	}); err != nil {
		return 0, err
	}

	job := model.Job{SID: sid, PID: pid, Language: language, Code: code}
	if e.queue.len() >= e.spillThreshold {
		if err := e.store.WriteSource(sid, code); err != nil {
			return 0, err
		}
		job.Code = ""
		job.Spilled = true
	}
	e.queue.push(job)

	logger.Info(ctx, "submission accepted",
		zap.Int64("sid", sid),
		zap.String("pid", pid),
		zap.String("language", language),
		zap.Bool("spilled", job.Spilled))
	return sid, nil
}

// GetResult returns the verdict for one submission, consuming terminal
// in-memory entries on first read.
func (e *Engine) GetResult(ctx context.Context, sid int64) (model.Verdict, error) {
	if sid <= 0 {
		return model.Verdict{}, appErr.ValidationError("sid", "must be positive")
	}
	return e.verdicts.Get(ctx, sid)
}

// ClearResults wipes the in-memory verdict cache only.
func (e *Engine) ClearResults() {
	e.verdicts.Clear()
}

// QueueLen reports the number of queued, not yet picked up submissions.
func (e *Engine) QueueLen() int {
	return e.queue.len()
}

// Reset restarts the id sequence and purges the submission archive. Workers
// still in flight may write results into the fresh tree; callers that need
// stronger guarantees must quiesce the queue first.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Reset(); err != nil {
		return err
	}
	if err := store.EmptyTree(e.store.SubmissionsRoot()); err != nil {
		return err
	}
	e.verdicts.Clear()
	logger.Info(ctx, "judge state reset")
	return nil
}

func withSubmission(ctx context.Context, sid int64) context.Context {
	return context.WithValue(ctx, contextkey.SubmissionID, sid)
}

// jobQueue is an unbounded FIFO. Intake pushes, workers poll; spilling at
// intake caps the in-memory byte footprint, not the entry count.
type jobQueue struct {
	mu    sync.Mutex
	items []model.Job
}

func (q *jobQueue) push(j model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, j)
}

func (q *jobQueue) pop() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.Job{}, false
	}
	j := q.items[0]
	q.items = q.items[1:]
	return j, true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
