package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/repository"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/sandbox"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/service"
	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/store"
)

// fakeJudge emulates the sandbox executor for full-pipeline tests: compiles
// always succeed (unless the source asks otherwise), the player echoes its
// stdin, and the checker compares output with the expected answer.
type fakeJudge struct {
	mu      sync.Mutex
	nextID  int
	issued  []string
	deletes []string
	runs    [][]sandbox.Cmd
	pipes   [][]sandbox.PipeMap
}

func (f *fakeJudge) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Cmd         []sandbox.Cmd     `json:"cmd"`
			PipeMapping []sandbox.PipeMap `json:"pipeMapping"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.runs = append(f.runs, req.Cmd)
		f.pipes = append(f.pipes, req.PipeMapping)
		results := make([]sandbox.Result, len(req.Cmd))
		for i, cmd := range req.Cmd {
			results[i] = f.execute(cmd)
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(results)
	})
	mux.HandleFunc("/file/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		f.deletes = append(f.deletes, strings.TrimPrefix(r.URL.Path, "/file/"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// execute runs one fake command; the caller holds the lock.
func (f *fakeJudge) execute(cmd sandbox.Cmd) sandbox.Result {
	res := sandbox.Result{
		Status:  sandbox.StatusAccepted,
		Files:   map[string]string{},
		FileIDs: map[string]string{},
		Time:    1_000_000,
		Memory:  1 << 20,
	}
	cache := func() {
		for _, name := range cmd.CopyOutCached {
			f.nextID++
			id := fmt.Sprintf("fid-%d", f.nextID)
			f.issued = append(f.issued, id)
			res.FileIDs[name] = id
		}
	}

	switch cmd.Args[0] {
	case "/usr/bin/g++", "/usr/bin/javac":
		for _, in := range cmd.CopyIn {
			if in.Content != nil && strings.Contains(*in.Content, "SYNTAX_ERROR") {
				return sandbox.Result{
					Status:     sandbox.StatusNonzeroExitStatus,
					ExitStatus: 1,
					Files:      map[string]string{"stderr": "main.cpp:1: error: expected ';'"},
				}
			}
		}
		cache()
		for _, name := range cmd.CopyOut {
			res.Files[name] = "ELFBLOB"
		}
		return res
	case "/usr/bin/env":
		cache()
		return res
	case "chk":
		outFile, ansFile := cmd.CopyIn["out.txt"], cmd.CopyIn["ans.txt"]
		if outFile.Content != nil && ansFile.Content != nil && *outFile.Content == *ansFile.Content {
			res.Files["stdout"] = "ok"
			return res
		}
		// Interactor slots (piped stdio) have no out.txt either way.
		if outFile.Content == nil && ansFile.Content != nil {
			res.Files["stderr"] = ""
			return res
		}
		return sandbox.Result{
			Status:     sandbox.StatusNonzeroExitStatus,
			ExitStatus: 1,
			Files:      map[string]string{"stderr": "wrong answer"},
		}
	default:
		// Player run: echo stdin to stdout, or time out on demand.
		stdin := ""
		if len(cmd.Files) > 0 && cmd.Files[0] != nil && cmd.Files[0].Content != nil {
			stdin = *cmd.Files[0].Content
		}
		if strings.Contains(stdin, "SLEEP") {
			return sandbox.Result{
				Status: sandbox.StatusTimeLimitExceeded,
				Time:   2_000_000_000,
				Memory: 1 << 20,
				Files:  map[string]string{"stderr": ""},
			}
		}
		res.Files["stdout"] = stdin
		res.Files["stderr"] = ""
		return res
	}
}

func (f *fakeJudge) playerRuns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, cmds := range f.runs {
		for _, cmd := range cmds {
			if cmd.Args[0] == "a" {
				count++
			}
		}
	}
	return count
}

func (f *fakeJudge) totalCommands() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, cmds := range f.runs {
		count += len(cmds)
	}
	return count
}

func (f *fakeJudge) checkerCompiles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, cmds := range f.runs {
		for _, cmd := range cmds {
			for _, arg := range cmd.Args {
				if arg == "-I" {
					count++
					break
				}
			}
		}
	}
	return count
}

type testEnv struct {
	engine       *service.Engine
	store        *store.Store
	fake         *fakeJudge
	problemsRoot string
}

func newTestEnv(t *testing.T, spillThreshold int) *testEnv {
	t.Helper()
	fake := &fakeJudge{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	base := t.TempDir()
	problemsRoot := filepath.Join(base, "problems")
	st, err := store.New(filepath.Join(base, "data"), filepath.Join(base, "submissions"), 100)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	loader := problem.NewLoader(problemsRoot)
	verdicts := repository.NewVerdictRepository(st)

	engine, err := service.NewEngine(service.Config{
		SandboxAddr:    srv.URL,
		TestlibPath:    "/usr/include/testlib",
		Workers:        2,
		SpillThreshold: spillThreshold,
		Store:          st,
		Loader:         loader,
		Verdicts:       verdicts,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group := engine.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = group.Wait()
	})

	return &testEnv{engine: engine, store: st, fake: fake, problemsRoot: problemsRoot}
}

// writeEchoProblem installs a problem whose expected answers are explicit per
// case; the fake player just echoes its input.
func (env *testEnv) writeEchoProblem(t *testing.T, pid string, inputs, answers []string) string {
	t.Helper()
	dir := filepath.Join(env.problemsRoot, pid)
	if err := os.MkdirAll(filepath.Join(dir, "testdata"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	config := fmt.Sprintf("subtasks:\n  - score: 100\n    n_cases: %d\n", len(inputs))
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	for i := range inputs {
		in := filepath.Join(dir, "testdata", fmt.Sprintf("%d.in", i+1))
		ans := filepath.Join(dir, "testdata", fmt.Sprintf("%d.ans", i+1))
		if err := os.WriteFile(in, []byte(inputs[i]), 0644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		if err := os.WriteFile(ans, []byte(answers[i]), 0644); err != nil {
			t.Fatalf("write answer: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "chk.cc"), []byte("// token checker"), 0644); err != nil {
		t.Fatalf("write checker: %v", err)
	}
	return dir
}

func (env *testEnv) waitVerdict(t *testing.T, sid int64) model.Verdict {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v, err := env.engine.GetResult(context.Background(), sid)
		if err == nil && v.Terminal() {
			return v
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("submission %d did not finish", sid)
	return model.Verdict{}
}

func (env *testEnv) waitCleanup(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		env.fake.mu.Lock()
		issued, deleted := len(env.fake.issued), len(env.fake.deletes)
		env.fake.mu.Unlock()
		if issued == deleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	env.fake.mu.Lock()
	defer env.fake.mu.Unlock()
	t.Fatalf("artifact leak: issued %v, deleted %v", env.fake.issued, env.fake.deletes)
}

func TestHappyPathTwoCases(t *testing.T) {
	env := newTestEnv(t, -1)
	env.writeEchoProblem(t, "A", []string{"1 2\n", "3 4\n"}, []string{"1 2\n", "3 4\n"})

	sid, err := env.engine.Submit(context.Background(), "A", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sid != 1 {
		t.Fatalf("first sid = %d", sid)
	}

	v := env.waitVerdict(t, sid)
	if v.State != model.StateDone || !v.Passed || v.Result != model.StatusAccepted {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if len(v.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(v.Cases))
	}
	for i, c := range v.Cases {
		if !c.OK || c.Status != model.StatusAccepted {
			t.Fatalf("case %d not accepted: %+v", i, c)
		}
	}
	env.waitCleanup(t)
}

func TestTimeLimitStopsRemainingCases(t *testing.T) {
	env := newTestEnv(t, -1)
	env.writeEchoProblem(t, "B",
		[]string{"ok\n", "SLEEP\n", "never\n"},
		[]string{"ok\n", "x\n", "never\n"})

	sid, err := env.engine.Submit(context.Background(), "B", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if v.Passed {
		t.Fatalf("verdict must fail")
	}
	if v.Result != model.StatusTimeLimitExceeded {
		t.Fatalf("result = %s", v.Result)
	}
	if len(v.Cases) != 2 {
		t.Fatalf("early termination must emit exactly 2 cases, got %d", len(v.Cases))
	}
	if v.Cases[0].Status != model.StatusAccepted || v.Cases[1].Status != model.StatusTimeLimitExceeded {
		t.Fatalf("case statuses wrong: %+v", v.Cases)
	}
	if got := env.fake.playerRuns(); got != 2 {
		t.Fatalf("case 3 must never be dispatched, player runs = %d", got)
	}
	env.waitCleanup(t)
}

func TestCompileErrorSkipsChecker(t *testing.T) {
	env := newTestEnv(t, -1)
	env.writeEchoProblem(t, "C", []string{"1\n"}, []string{"1\n"})

	sid, err := env.engine.Submit(context.Background(), "C", "cpp", "int main(){ SYNTAX_ERROR")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if v.State != model.StateError {
		t.Fatalf("expected error verdict, got %+v", v)
	}
	if !strings.Contains(v.Error, "expected ';'") {
		t.Fatalf("compiler stderr must be surfaced: %q", v.Error)
	}
	if len(v.Cases) != 0 {
		t.Fatalf("error verdict must have no cases")
	}
	if env.fake.checkerCompiles() != 0 {
		t.Fatalf("checker must not be prepared after compile error")
	}
	env.waitCleanup(t)
}

func TestCheckerRejectsWrongAnswer(t *testing.T) {
	env := newTestEnv(t, -1)
	env.writeEchoProblem(t, "D", []string{"1 2\n"}, []string{"3\n"})

	sid, err := env.engine.Submit(context.Background(), "D", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if v.Passed || v.Result != model.StatusWrongAnswer {
		t.Fatalf("unexpected verdict %+v", v)
	}
	c := v.Cases[0]
	if c.OK || c.Status != model.StatusWrongAnswer {
		t.Fatalf("case must be WrongAnswer: %+v", c)
	}
	if !strings.Contains(c.Message, "wrong answer") {
		t.Fatalf("checker output must be surfaced: %q", c.Message)
	}
	env.waitCleanup(t)
}

func TestSpilledSubmissionJudgesIdentically(t *testing.T) {
	env := newTestEnv(t, 0) // spill every submission
	env.writeEchoProblem(t, "E", []string{"5 6\n"}, []string{"5 6\n"})

	sid, err := env.engine.Submit(context.Background(), "E", "cpp", "int main(){/*spilled*/}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if v.State != model.StateDone || !v.Passed || v.Result != model.StatusAccepted {
		t.Fatalf("spilled run diverged: %+v", v)
	}
	code, err := env.store.ReadSource(sid)
	if err != nil {
		t.Fatalf("spilled source must be archived: %v", err)
	}
	if code != "int main(){/*spilled*/}" {
		t.Fatalf("source mismatch: %q", code)
	}
	env.waitCleanup(t)
}

func TestCachedCheckerBlobSkipsCompile(t *testing.T) {
	env := newTestEnv(t, -1)
	dir := env.writeEchoProblem(t, "F", []string{"a\n", "b\n"}, []string{"a\n", "b\n"})
	if err := os.WriteFile(filepath.Join(dir, "chk.cc.bin"), []byte("ELFBLOB"), 0755); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	sid, err := env.engine.Submit(context.Background(), "F", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if !v.Passed {
		t.Fatalf("unexpected verdict %+v", v)
	}
	env.waitCleanup(t)

	// 1 program compile + 1 blob upload + 2 cases x (run + check), no
	// checker compile.
	if got := env.fake.totalCommands(); got != 6 {
		t.Fatalf("expected 6 sandbox commands, got %d", got)
	}
	if env.fake.checkerCompiles() != 0 {
		t.Fatalf("cached blob must skip checker compilation")
	}
}

func TestVerdictConsumedOnceThenServedFromDisk(t *testing.T) {
	env := newTestEnv(t, -1)
	env.writeEchoProblem(t, "G", []string{"x\n"}, []string{"x\n"})

	sid, err := env.engine.Submit(context.Background(), "G", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first := env.waitVerdict(t, sid)

	second, err := env.engine.GetResult(context.Background(), sid)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("archived verdict diverged: %s vs %s", a, b)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, -1)
	ctx := context.Background()
	if _, err := env.engine.Submit(ctx, "", "cpp", "x"); err == nil {
		t.Fatalf("empty pid must be rejected")
	}
	if _, err := env.engine.Submit(ctx, "A", "", "x"); err == nil {
		t.Fatalf("empty language must be rejected")
	}
	if _, err := env.engine.Submit(ctx, "A", "cpp", ""); err == nil {
		t.Fatalf("empty code must be rejected")
	}
}

func TestUnknownProblemYieldsErrorVerdict(t *testing.T) {
	env := newTestEnv(t, -1)
	sid, err := env.engine.Submit(context.Background(), "ghost", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if v.State != model.StateError {
		t.Fatalf("expected error verdict, got %+v", v)
	}
}

func TestInteractiveProblem(t *testing.T) {
	env := newTestEnv(t, -1)
	dir := filepath.Join(env.problemsRoot, "I")
	if err := os.MkdirAll(filepath.Join(dir, "testdata"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	config := "type: interactive\ninteractor: intr.cc\nsubtasks:\n  - score: 100\n    n_cases: 1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "testdata", "1.in"), []byte("42\n"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "testdata", "1.ans"), []byte("42\n"), 0644); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "intr.cc"), []byte("// interactor"), 0644); err != nil {
		t.Fatalf("write interactor: %v", err)
	}

	sid, err := env.engine.Submit(context.Background(), "I", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := env.waitVerdict(t, sid)
	if v.State != model.StateDone || !v.Passed {
		t.Fatalf("unexpected verdict %+v", v)
	}

	env.fake.mu.Lock()
	defer env.fake.mu.Unlock()
	foundPaired := false
	for i, cmds := range env.fake.runs {
		if len(cmds) == 2 && len(env.fake.pipes[i]) == 2 {
			foundPaired = true
		}
	}
	if !foundPaired {
		t.Fatalf("interactive case must run player and interactor in one piped dispatch")
	}
}

func TestResetRestartsSequence(t *testing.T) {
	env := newTestEnv(t, -1)
	env.writeEchoProblem(t, "H", []string{"y\n"}, []string{"y\n"})

	sid, err := env.engine.Submit(context.Background(), "H", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.waitVerdict(t, sid)

	if err := env.engine.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sid, err = env.engine.Submit(context.Background(), "H", "cpp", "int main(){}")
	if err != nil {
		t.Fatalf("submit after reset: %v", err)
	}
	if sid != 1 {
		t.Fatalf("sequence must restart at 1, got %d", sid)
	}
	v := env.waitVerdict(t, sid)
	if !v.Passed {
		t.Fatalf("post-reset judge failed: %+v", v)
	}
}
