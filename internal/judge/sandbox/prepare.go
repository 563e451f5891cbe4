package sandbox

import (
	"context"
	"time"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"go.uber.org/zap"
)

const compileOutputMax = 64 << 10

// PreparedProgram is a runnable player program: the run command plus the
// copy-in bindings that place its artifact (or source) into the run box.
// CleanupIDs must be released when the submission finishes.
type PreparedProgram struct {
	RunArgs    []string
	CopyIn     map[string]CmdFile
	CleanupIDs []string
}

// Preparer turns sources into runnable sandbox artifacts.
type Preparer struct {
	client     *Client
	langs      LanguageTable
	testlibDir string
}

// NewPreparer creates a preparer. testlibDir is the include path containing
// testlib.h as seen from inside the sandbox.
func NewPreparer(client *Client, langs LanguageTable, testlibDir string) *Preparer {
	if langs == nil {
		langs = DefaultLanguages()
	}
	return &Preparer{client: client, langs: langs, testlibDir: testlibDir}
}

// Program prepares the player program for one submission. mainName optionally
// overrides the language's default source filename. Compilation failure is
// reported as a CompilationError carrying the compiler's stderr.
func (p *Preparer) Program(ctx context.Context, language, source, mainName string) (PreparedProgram, error) {
	spec, ok := p.langs.Resolve(language)
	if !ok {
		return PreparedProgram{}, appErr.New(appErr.LanguageNotSupported).WithMessage("unsupported language")
	}
	spec = spec.withMainName(mainName)

	if len(spec.CompileArgs) == 0 {
		// Interpreted: cache the source and bind it into every run.
		id, err := p.client.CacheInline(ctx, spec.SourceName, source)
		if err != nil {
			return PreparedProgram{}, err
		}
		return PreparedProgram{
			RunArgs:    spec.RunArgs,
			CopyIn:     map[string]CmdFile{spec.SourceName: CachedFile(id)},
			CleanupIDs: []string{id},
		}, nil
	}

	cmd := Cmd{
		Args: spec.CompileArgs,
		Env:  DefaultEnv(),
		Files: []*CmdFile{
			{Content: strPtr("")},
			Collector("stdout", compileOutputMax),
			Collector("stderr", compileOutputMax),
		},
		CPULimit:      spec.CompileCPUNS,
		MemoryLimit:   spec.CompileMemoryBytes,
		ProcLimit:     50,
		CopyIn:        map[string]CmdFile{spec.SourceName: MemoryFile(source)},
		CopyOutCached: []string{spec.ArtifactName},
	}
	results, err := p.client.Run(ctx, []Cmd{cmd}, nil)
	if err != nil {
		return PreparedProgram{}, err
	}
	r := results[0]
	if r.Status != StatusAccepted {
		msg := r.Files["stderr"]
		if msg == "" {
			msg = r.Status
		}
		return PreparedProgram{}, appErr.New(appErr.CompilationError).WithMessage(msg)
	}
	id, ok := r.FileIDs[spec.ArtifactName]
	if !ok || id == "" {
		return PreparedProgram{}, appErr.Newf(appErr.SandboxBadReply, "compile produced no artifact %s", spec.ArtifactName)
	}
	logger.Debug(ctx, "program prepared",
		zap.String("language", language),
		zap.String("artifact", spec.ArtifactName),
		zap.Int64("compile_time_ns", r.Time))
	return PreparedProgram{
		RunArgs:    spec.RunArgs,
		CopyIn:     map[string]CmdFile{spec.ArtifactName: CachedFile(id)},
		CleanupIDs: []string{id},
	}, nil
}

func checkerCompileCmd(source string, include string, artifact string) Cmd {
	return Cmd{
		Args: []string{"/usr/bin/g++", "-O2", "-pipe", "-std=gnu++17", "-I", include, "-o", artifact, artifact + ".cc"},
		Env:  DefaultEnv(),
		Files: []*CmdFile{
			{Content: strPtr("")},
			Collector("stdout", compileOutputMax),
			Collector("stderr", compileOutputMax),
		},
		CPULimit:    int64(10 * time.Second),
		MemoryLimit: 512 << 20,
		ProcLimit:   50,
		CopyIn:      map[string]CmdFile{artifact + ".cc": MemoryFile(source)},
	}
}
