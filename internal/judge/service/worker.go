package service

import (
	"context"
	"fmt"
	"time"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/sandbox"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"go.uber.org/zap"
)

// runWorker is one worker loop: dequeue, evaluate, repeat. An empty queue is
// polled every 50ms.
func (e *Engine) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "judge worker stopping", zap.Int("worker", id))
			return
		default:
		}
		job, ok := e.queue.pop()
		if !ok {
			time.Sleep(idleQueuePollInterval)
			continue
		}
		e.process(ctx, job)
	}
}

// process evaluates one submission end to end. Every sandbox artifact
// acquired along the way is released on every exit path, including panics.
func (e *Engine) process(parent context.Context, job model.Job) {
	ctx := withSubmission(parent, job.SID)
	start := time.Now()

	var cleanupIDs []string
	var cleanupFns []func(context.Context)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judge worker panic", zap.Any("panic", r))
			e.finish(ctx, job.SID, model.Errored(fmt.Sprintf("internal judge failure: %v", r)))
		}
		for _, id := range cleanupIDs {
			e.client.DeleteFile(ctx, id)
		}
		for _, fn := range cleanupFns {
			fn(ctx)
		}
	}()

	code := job.Code
	if job.Spilled {
		var err error
		code, err = e.store.ReadSource(job.SID)
		if err != nil {
			e.finish(ctx, job.SID, model.Errored(err.Error()))
			return
		}
	} else if err := e.store.WriteSource(job.SID, code); err != nil {
		// Archival only; the verdict still lands in the memory cache.
		logger.Warn(ctx, "archive source failed", zap.Error(err))
	}

	plan, err := e.loader.Load(job.PID)
	if err != nil {
		e.finish(ctx, job.SID, model.Errored(err.Error()))
		return
	}

	prog, err := e.preparer.Program(ctx, job.Language, code, plan.MainName)
	if err != nil {
		e.finish(ctx, job.SID, model.Errored(err.Error()))
		return
	}
	cleanupIDs = append(cleanupIDs, prog.CleanupIDs...)

	var adjudicator sandbox.PreparedChecker
	switch plan.Type {
	case problem.TypeInteractive:
		adjudicator, err = e.preparer.Checker(ctx, plan.Dir, plan.Interactor)
	default:
		adjudicator, err = e.preparer.Checker(ctx, plan.Dir, plan.Checker)
	}
	if err != nil {
		e.finish(ctx, job.SID, model.Errored(err.Error()))
		return
	}
	cleanupFns = append(cleanupFns, adjudicator.Cleanup)

	results := make([]model.CaseResult, 0, len(plan.Cases))
	for i, c := range plan.Cases {
		var res model.CaseResult
		var caseErr error
		if plan.Type == problem.TypeInteractive {
			res, caseErr = e.judgeInteractiveCase(ctx, plan, prog, adjudicator.FileID, c)
		} else {
			res, caseErr = e.judgeCase(ctx, plan, prog, adjudicator.FileID, c)
		}
		if caseErr != nil {
			// The case could not even be run or checked.
			res = model.CaseResult{
				OK:      false,
				Status:  model.StatusInternalError,
				Message: caseErr.Error(),
			}
		}
		results = append(results, res)
		if !res.OK {
			logger.Info(ctx, "case failed, stopping",
				zap.Int("case", i),
				zap.String("status", string(res.Status)))
			break
		}
	}

	verdict := model.Done(results)
	logger.Info(ctx, "submission judged",
		zap.Bool("passed", verdict.Passed),
		zap.String("result", string(verdict.Result)),
		zap.Int("cases", len(results)),
		zap.Duration("took", time.Since(start)))
	e.finish(ctx, job.SID, verdict)
}

// finish persists a terminal verdict and then publishes it. The disk write
// happens first so consume-on-read never races a missing result.json.
func (e *Engine) finish(ctx context.Context, sid int64, v model.Verdict) {
	if err := e.store.WriteResult(sid, v); err != nil {
		logger.Warn(ctx, "persist verdict failed", zap.Error(err))
	}
	e.verdicts.Publish(sid, v)
}
