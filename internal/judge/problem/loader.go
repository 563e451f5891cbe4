// Package problem loads on-disk problem descriptions into execution plans
// and owns the filesystem-level curation operations around them.
package problem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"

	"gopkg.in/yaml.v3"
)

const (
	configFileName    = "config.yaml"
	statementFileName = "statement.txt"
	testdataDirName   = "testdata"

	// TypeDefault and TypeInteractive are the supported problem types.
	// "leetcode" is reserved and rejected by the loader.
	TypeDefault     = "default"
	TypeInteractive = "interactive"

	defaultChecker      = "chk.cc"
	defaultInputSuffix  = ".in"
	defaultOutputSuffix = ".ans"
)

// Case is one flattened test case with fully resolved limits.
type Case struct {
	Subtask     int
	Input       string
	Answer      string
	TimeNS      int64
	MemoryBytes int64
}

// Plan is the loaded execution plan for one problem.
type Plan struct {
	PID        string
	Dir        string
	Type       string
	Cases      []Case
	Checker    string
	Interactor string
	MainName   string
}

// Info is one entry of a problem listing.
type Info struct {
	PID       string `json:"pid"`
	Statement string `json:"statement,omitempty"`
}

type rawCase struct {
	Input  string      `yaml:"input"`
	Output string      `yaml:"output"`
	Time   interface{} `yaml:"time"`
	Memory interface{} `yaml:"memory"`
}

type rawSubtask struct {
	Score       int         `yaml:"score"`
	Time        interface{} `yaml:"time"`
	TimeLimit   interface{} `yaml:"time_limit"`
	Memory      interface{} `yaml:"memory"`
	MemoryLimit interface{} `yaml:"memory_limit"`
	NCases      int         `yaml:"n_cases"`
	Cases       []rawCase   `yaml:"cases"`
}

type rawConfig struct {
	Type         string       `yaml:"type"`
	Time         interface{}  `yaml:"time"`
	TimeLimit    interface{}  `yaml:"time_limit"`
	Memory       interface{}  `yaml:"memory"`
	MemoryLimit  interface{}  `yaml:"memory_limit"`
	Checker      string       `yaml:"checker"`
	Interactor   string       `yaml:"interactor"`
	Filename     string       `yaml:"filename"`
	InputPrefix  string       `yaml:"input_prefix"`
	InputSuffix  string       `yaml:"input_suffix"`
	OutputPrefix string       `yaml:"output_prefix"`
	OutputSuffix string       `yaml:"output_suffix"`
	Subtasks     []rawSubtask `yaml:"subtasks"`
}

// Loader reads problems from a root directory laid out as
// <root>/<pid>/config.yaml plus testdata/.
type Loader struct {
	root string
}

// NewLoader creates a loader over the given problems root.
func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

// Dir returns the directory of one problem.
func (l *Loader) Dir(pid string) string {
	return filepath.Join(l.root, pid)
}

// Load parses and flattens the problem configuration into a plan.
func (l *Loader) Load(pid string) (*Plan, error) {
	if err := checkPID(pid); err != nil {
		return nil, err
	}
	dir := l.Dir(pid)
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProblemNotFound, "problem %s not found", pid)
	}
	var cfg rawConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, appErr.Wrapf(err, appErr.ProblemConfigBroken, "parse %s/%s failed", pid, configFileName)
	}

	if cfg.Type == "" {
		cfg.Type = TypeDefault
	}
	if cfg.Type != TypeDefault && cfg.Type != TypeInteractive {
		return nil, appErr.Newf(appErr.ProblemConfigBroken, "unsupported problem type %q", cfg.Type)
	}
	if cfg.Type == TypeInteractive && cfg.Interactor == "" {
		return nil, appErr.Newf(appErr.ProblemConfigBroken, "interactive problem requires an interactor")
	}
	if len(cfg.Subtasks) == 0 {
		return nil, appErr.Newf(appErr.ProblemConfigBroken, "problem has no subtasks")
	}

	if cfg.Checker == "" {
		cfg.Checker = defaultChecker
	}
	if cfg.InputSuffix == "" {
		cfg.InputSuffix = defaultInputSuffix
	}
	if cfg.OutputSuffix == "" {
		cfg.OutputSuffix = defaultOutputSuffix
	}

	problemTime := firstValue(cfg.Time, cfg.TimeLimit)
	problemMemory := firstValue(cfg.Memory, cfg.MemoryLimit)

	var cases []Case
	nextIndex := 1
	for si, st := range cfg.Subtasks {
		stTime := firstValue(st.Time, st.TimeLimit)
		stMemory := firstValue(st.Memory, st.MemoryLimit)

		switch {
		case st.NCases > 0:
			for k := 0; k < st.NCases; k++ {
				idx := nextIndex + k
				c, err := resolveCase(si, rawCase{
					Input:  fmt.Sprintf("%s%d%s", cfg.InputPrefix, idx, cfg.InputSuffix),
					Output: fmt.Sprintf("%s%d%s", cfg.OutputPrefix, idx, cfg.OutputSuffix),
				}, stTime, stMemory, problemTime, problemMemory)
				if err != nil {
					return nil, err
				}
				cases = append(cases, c)
			}
			nextIndex += st.NCases
		case len(st.Cases) > 0:
			for _, rc := range st.Cases {
				if rc.Input == "" || rc.Output == "" {
					return nil, appErr.Newf(appErr.ProblemConfigBroken, "subtask %d has a case without input/output", si)
				}
				c, err := resolveCase(si, rc, stTime, stMemory, problemTime, problemMemory)
				if err != nil {
					return nil, err
				}
				cases = append(cases, c)
			}
		default:
			return nil, appErr.Newf(appErr.ProblemConfigBroken, "subtask %d needs n_cases or cases", si)
		}
	}

	plan := &Plan{
		PID:        pid,
		Dir:        dir,
		Type:       cfg.Type,
		Cases:      cases,
		Checker:    cfg.Checker,
		Interactor: cfg.Interactor,
		MainName:   cfg.Filename,
	}
	return plan, nil
}

func resolveCase(subtask int, rc rawCase, stTime, stMemory, pbTime, pbMemory interface{}) (Case, error) {
	timeNS, err := pickLimit(ParseTime, DefaultTimeNS, rc.Time, stTime, pbTime)
	if err != nil {
		return Case{}, appErr.Wrap(err, appErr.ProblemConfigBroken)
	}
	memBytes, err := pickLimit(ParseMemory, DefaultMemoryBytes, rc.Memory, stMemory, pbMemory)
	if err != nil {
		return Case{}, appErr.Wrap(err, appErr.ProblemConfigBroken)
	}
	return Case{
		Subtask:     subtask,
		Input:       rc.Input,
		Answer:      rc.Output,
		TimeNS:      timeNS,
		MemoryBytes: memBytes,
	}, nil
}

// ReadTestFile returns the content of one file under the problem's testdata
// directory.
func (l *Loader) ReadTestFile(pid, name string) ([]byte, error) {
	if err := checkPID(pid); err != nil {
		return nil, err
	}
	path, err := safeJoin(filepath.Join(l.Dir(pid), testdataDirName), name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TestFileNotFound, "test file %s/%s not found", pid, name)
	}
	return data, nil
}

// ReadAnswerFile returns the expected answer for a case. A configured ".out"
// name falls back to a sibling ".ans" file when one exists (kept for
// compatibility with older packaging tools).
func (l *Loader) ReadAnswerFile(pid, name string) ([]byte, error) {
	if strings.HasSuffix(name, ".out") {
		alt := strings.TrimSuffix(name, ".out") + ".ans"
		if data, err := l.ReadTestFile(pid, alt); err == nil {
			return data, nil
		}
	}
	return l.ReadTestFile(pid, name)
}

// ReadCheckerSource returns checker source text from the problem directory.
func (l *Loader) ReadCheckerSource(pid, name string) ([]byte, error) {
	return l.readProblemFile(pid, name, appErr.CheckerNotFound)
}

// ReadInteractorSource returns interactor source text from the problem
// directory.
func (l *Loader) ReadInteractorSource(pid, name string) ([]byte, error) {
	return l.readProblemFile(pid, name, appErr.CheckerNotFound)
}

// ReadStatement returns the problem statement text.
func (l *Loader) ReadStatement(pid string) ([]byte, error) {
	return l.readProblemFile(pid, statementFileName, appErr.StatementNotFound)
}

func (l *Loader) readProblemFile(pid, name string, code appErr.ErrorCode) ([]byte, error) {
	if err := checkPID(pid); err != nil {
		return nil, err
	}
	path, err := safeJoin(l.Dir(pid), name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, code, "%s/%s not found", pid, name)
	}
	return data, nil
}

// ListProblems enumerates problem directories in lexicographic order, keeping
// only those that contain a config file. Configs are not validated here.
func (l *Loader) ListProblems(withStatement bool) ([]Info, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "list problems failed")
	}
	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid := e.Name()
		if _, err := os.Stat(filepath.Join(l.Dir(pid), configFileName)); err != nil {
			continue
		}
		info := Info{PID: pid}
		if withStatement {
			if data, err := l.ReadStatement(pid); err == nil {
				info.Statement = string(data)
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PID < infos[j].PID })
	return infos, nil
}

// checkPID rejects problem ids that could escape the problems root.
func checkPID(pid string) error {
	if pid == "" {
		return appErr.ValidationError("pid", "required")
	}
	if strings.ContainsAny(pid, "/\\") || pid == "." || pid == ".." || strings.HasPrefix(pid, "..") {
		return appErr.Newf(appErr.InvalidParams, "invalid problem id %q", pid)
	}
	return nil
}

// safeJoin joins a relative name under base, refusing traversal outside it.
func safeJoin(base, name string) (string, error) {
	if name == "" {
		return "", appErr.ValidationError("name", "required")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", appErr.Newf(appErr.InvalidParams, "invalid file name %q", name)
	}
	full := filepath.Join(base, clean)
	if !strings.HasPrefix(full, filepath.Clean(base)+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.InvalidParams, "invalid file name %q", name)
	}
	return full, nil
}
