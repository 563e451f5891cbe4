package service

import (
	"context"
	"path/filepath"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"go.uber.org/zap"
)

// SetupProblem pre-compiles a problem's checker (and interactor, for
// interactive problems) and stores the binaries beside their sources as
// <name>.bin, so submissions skip the per-judge compile.
func (e *Engine) SetupProblem(ctx context.Context, pid string) error {
	plan, err := e.loader.Load(pid)
	if err != nil {
		return err
	}

	src, err := e.loader.ReadCheckerSource(pid, plan.Checker)
	if err != nil {
		return err
	}
	dest := filepath.Join(plan.Dir, plan.Checker+".bin")
	if err := e.preparer.CompileCheckerTo(ctx, string(src), dest); err != nil {
		return err
	}
	logger.Info(ctx, "checker binary cached", zap.String("pid", pid), zap.String("path", dest))

	if plan.Type == problem.TypeInteractive {
		src, err := e.loader.ReadInteractorSource(pid, plan.Interactor)
		if err != nil {
			return err
		}
		dest := filepath.Join(plan.Dir, plan.Interactor+".bin")
		if err := e.preparer.CompileCheckerTo(ctx, string(src), dest); err != nil {
			return err
		}
		logger.Info(ctx, "interactor binary cached", zap.String("pid", pid), zap.String("path", dest))
	}
	return nil
}
