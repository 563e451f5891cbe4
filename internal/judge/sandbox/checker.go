package sandbox

import (
	"context"
	"os"
	"path/filepath"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"go.uber.org/zap"
)

// checkerArtifact is the executable name every checker and interactor gets
// inside its run box.
const checkerArtifact = "chk"

// PreparedChecker is a runnable checker (or interactor) held in the sandbox
// cache. Cleanup releases the cached artifact; calls after the first are
// no-ops.
type PreparedChecker struct {
	FileID  string
	Cleanup func(ctx context.Context)
}

// Checker produces a runnable checker artifact for a problem. When a
// pre-compiled binary cache (<dir>/<sourceName>.bin) exists it is uploaded
// directly; otherwise the source is compiled against testlib on demand.
func (p *Preparer) Checker(ctx context.Context, dir, sourceName string) (PreparedChecker, error) {
	binPath := filepath.Join(dir, sourceName+".bin")
	if blob, err := os.ReadFile(binPath); err == nil {
		id, err := p.client.CacheInline(ctx, checkerArtifact, string(blob))
		if err != nil {
			return PreparedChecker{}, err
		}
		logger.Debug(ctx, "checker blob uploaded", zap.String("path", binPath))
		return p.prepared(id), nil
	}

	source, err := os.ReadFile(filepath.Join(dir, sourceName))
	if err != nil {
		return PreparedChecker{}, appErr.Wrapf(err, appErr.CheckerNotFound, "read checker source %s failed", sourceName)
	}
	return p.compile(ctx, string(source))
}

// compile builds checker source against testlib and caches the binary.
func (p *Preparer) compile(ctx context.Context, source string) (PreparedChecker, error) {
	cmd := checkerCompileCmd(source, p.testlibDir, checkerArtifact)
	cmd.CopyOutCached = []string{checkerArtifact}
	results, err := p.client.Run(ctx, []Cmd{cmd}, nil)
	if err != nil {
		return PreparedChecker{}, err
	}
	r := results[0]
	if r.Status != StatusAccepted {
		msg := r.Files["stderr"]
		if msg == "" {
			msg = r.Status
		}
		return PreparedChecker{}, appErr.Newf(appErr.JudgeSystemError, "checker compilation failed: %s", msg)
	}
	id, ok := r.FileIDs[checkerArtifact]
	if !ok || id == "" {
		return PreparedChecker{}, appErr.Newf(appErr.SandboxBadReply, "checker compile produced no artifact")
	}
	return p.prepared(id), nil
}

// CompileCheckerTo compiles checker source and writes the resulting binary to
// destPath on the local filesystem, so later submissions take the cached-blob
// path. The transient sandbox artifact is released before returning.
func (p *Preparer) CompileCheckerTo(ctx context.Context, source, destPath string) error {
	cmd := checkerCompileCmd(source, p.testlibDir, checkerArtifact)
	cmd.CopyOut = []string{checkerArtifact}
	results, err := p.client.Run(ctx, []Cmd{cmd}, nil)
	if err != nil {
		return err
	}
	r := results[0]
	if r.Status != StatusAccepted {
		msg := r.Files["stderr"]
		if msg == "" {
			msg = r.Status
		}
		return appErr.Newf(appErr.JudgeSystemError, "checker compilation failed: %s", msg)
	}
	blob, ok := r.Files[checkerArtifact]
	if !ok {
		return appErr.Newf(appErr.SandboxBadReply, "checker compile returned no binary")
	}
	if err := os.WriteFile(destPath, []byte(blob), 0755); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write checker binary failed")
	}
	return nil
}

func (p *Preparer) prepared(id string) PreparedChecker {
	released := false
	return PreparedChecker{
		FileID: id,
		Cleanup: func(ctx context.Context) {
			if released {
				return
			}
			released = true
			p.client.DeleteFile(ctx, id)
		},
	}
}
