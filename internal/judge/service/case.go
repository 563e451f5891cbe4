package service

import (
	"context"
	"time"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/sandbox"
)

const (
	playerStdoutMax = 128 << 20
	playerStderrMax = 1 << 20
	checkerIOMax    = 1 << 20

	checkerCPUNS    = int64(2 * time.Second)
	checkerClockNS  = int64(4 * time.Second)
	checkerMemBytes = int64(256 << 20)
	checkerProcs    = 10

	playerProcs = 50
)

// judgeCase runs one test case: player first, checker only when the player
// run is accepted. A returned error means neither outcome was reached and
// the caller records InternalError for the case.
func (e *Engine) judgeCase(ctx context.Context, plan *problem.Plan, prog sandbox.PreparedProgram, checkerID string, c problem.Case) (model.CaseResult, error) {
	input, err := e.loader.ReadTestFile(plan.PID, c.Input)
	if err != nil {
		return model.CaseResult{}, err
	}
	answer, err := e.loader.ReadAnswerFile(plan.PID, c.Answer)
	if err != nil {
		return model.CaseResult{}, err
	}

	runCmd := sandbox.Cmd{
		Args: prog.RunArgs,
		Env:  sandbox.DefaultEnv(),
		Files: []*sandbox.CmdFile{
			inlineFile(string(input)),
			sandbox.Collector("stdout", playerStdoutMax),
			sandbox.Collector("stderr", playerStderrMax),
		},
		CPULimit:    c.TimeNS,
		ClockLimit:  2 * c.TimeNS,
		MemoryLimit: c.MemoryBytes,
		ProcLimit:   playerProcs,
		CopyIn:      prog.CopyIn,
	}
	runResults, err := e.client.Run(ctx, []sandbox.Cmd{runCmd}, nil)
	if err != nil {
		return model.CaseResult{}, err
	}
	run := runResults[0]
	if run.Status != sandbox.StatusAccepted {
		return model.CaseResult{
			OK:          false,
			Status:      model.CaseStatus(run.Status),
			TimeNS:      run.Time,
			MemoryBytes: run.Memory,
			Message:     run.Files["stderr"],
		}, nil
	}

	chkCmd := sandbox.Cmd{
		Args: []string{"chk", "in.txt", "out.txt", "ans.txt"},
		Env:  sandbox.DefaultEnv(),
		Files: []*sandbox.CmdFile{
			inlineFile(""),
			sandbox.Collector("stdout", checkerIOMax),
			sandbox.Collector("stderr", checkerIOMax),
		},
		CPULimit:    checkerCPUNS,
		ClockLimit:  checkerClockNS,
		MemoryLimit: checkerMemBytes,
		ProcLimit:   checkerProcs,
		CopyIn: map[string]sandbox.CmdFile{
			"chk":     sandbox.CachedFile(checkerID),
			"in.txt":  sandbox.MemoryFile(string(input)),
			"out.txt": sandbox.MemoryFile(run.Files["stdout"]),
			"ans.txt": sandbox.MemoryFile(string(answer)),
		},
	}
	chkResults, err := e.client.Run(ctx, []sandbox.Cmd{chkCmd}, nil)
	if err != nil {
		return model.CaseResult{}, err
	}
	chk := chkResults[0]

	ok := chk.Status == sandbox.StatusAccepted && chk.ExitStatus == 0
	status := model.StatusAccepted
	if !ok {
		status = model.StatusWrongAnswer
	}
	msg := chk.Files["stdout"]
	if msg == "" {
		msg = chk.Files["stderr"]
	}
	return model.CaseResult{
		OK:          ok,
		Status:      status,
		TimeNS:      run.Time,
		MemoryBytes: run.Memory,
		Message:     msg,
	}, nil
}

// judgeInteractiveCase co-executes player and interactor in one dispatch with
// their stdio cross-wired. The interactor's outcome plays the checker role.
// The case's limits apply to the player only; the interactor runs under the
// fixed checker limits.
func (e *Engine) judgeInteractiveCase(ctx context.Context, plan *problem.Plan, prog sandbox.PreparedProgram, interactorID string, c problem.Case) (model.CaseResult, error) {
	input, err := e.loader.ReadTestFile(plan.PID, c.Input)
	if err != nil {
		return model.CaseResult{}, err
	}
	answer, err := e.loader.ReadAnswerFile(plan.PID, c.Answer)
	if err != nil {
		return model.CaseResult{}, err
	}

	player := sandbox.Cmd{
		Args: prog.RunArgs,
		Env:  sandbox.DefaultEnv(),
		Files: []*sandbox.CmdFile{
			nil, // stdin piped from interactor
			nil, // stdout piped into interactor
			sandbox.Collector("stderr", playerStderrMax),
		},
		CPULimit:    c.TimeNS,
		ClockLimit:  2 * c.TimeNS,
		MemoryLimit: c.MemoryBytes,
		ProcLimit:   playerProcs,
		CopyIn:      prog.CopyIn,
	}
	interactor := sandbox.Cmd{
		Args: []string{"chk", "in.txt", "out.txt", "ans.txt"},
		Env:  sandbox.DefaultEnv(),
		Files: []*sandbox.CmdFile{
			nil, // stdin piped from player
			nil, // stdout piped into player
			sandbox.Collector("stderr", checkerIOMax),
		},
		CPULimit:    checkerCPUNS,
		ClockLimit:  checkerClockNS,
		MemoryLimit: checkerMemBytes,
		ProcLimit:   checkerProcs,
		CopyIn: map[string]sandbox.CmdFile{
			"chk":     sandbox.CachedFile(interactorID),
			"in.txt":  sandbox.MemoryFile(string(input)),
			"ans.txt": sandbox.MemoryFile(string(answer)),
		},
	}
	pipes := []sandbox.PipeMap{
		{In: sandbox.PipeIndex{Index: 0, Fd: 1}, Out: sandbox.PipeIndex{Index: 1, Fd: 0}},
		{In: sandbox.PipeIndex{Index: 1, Fd: 1}, Out: sandbox.PipeIndex{Index: 0, Fd: 0}},
	}

	results, err := e.client.Run(ctx, []sandbox.Cmd{player, interactor}, pipes)
	if err != nil {
		return model.CaseResult{}, err
	}
	run, inter := results[0], results[1]

	if run.Status != sandbox.StatusAccepted {
		return model.CaseResult{
			OK:          false,
			Status:      model.CaseStatus(run.Status),
			TimeNS:      run.Time,
			MemoryBytes: run.Memory,
			Message:     run.Files["stderr"],
		}, nil
	}

	ok := inter.Status == sandbox.StatusAccepted && inter.ExitStatus == 0
	status := model.StatusAccepted
	if !ok {
		status = model.StatusWrongAnswer
	}
	return model.CaseResult{
		OK:          ok,
		Status:      status,
		TimeNS:      run.Time,
		MemoryBytes: run.Memory,
		Message:     inter.Files["stderr"],
	}, nil
}

func inlineFile(content string) *sandbox.CmdFile {
	f := sandbox.MemoryFile(content)
	return &f
}
