package main

import (
	"fmt"
	"os"
	"time"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/sandbox"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8087"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultWorkers        = 4
	defaultSpillThreshold = 512 * 1024
	defaultBucketSize     = 100

	defaultDataRoot        = "var/judge/data"
	defaultProblemsRoot    = "var/judge/problems"
	defaultSubmissionsRoot = "var/judge/submissions"
	defaultTestlibPath     = "/usr/include/testlib"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// SandboxConfig holds sandbox executor settings.
type SandboxConfig struct {
	Addr           string        `yaml:"addr"`
	TestlibPath    string        `yaml:"testlibPath"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// JudgeConfig holds engine and filesystem settings.
type JudgeConfig struct {
	Workers         int    `yaml:"workers"`
	SpillThreshold  int    `yaml:"spillThreshold"`
	DataRoot        string `yaml:"dataRoot"`
	ProblemsRoot    string `yaml:"problemsRoot"`
	SubmissionsRoot string `yaml:"submissionsRoot"`
	BucketSize      int64  `yaml:"bucketSize"`
}

// LanguageOverride redefines one language's commands. Command strings are
// tokenized with shlex, so quoting works the way a shell user expects.
type LanguageOverride struct {
	Name      string        `yaml:"name"`
	Source    string        `yaml:"source"`
	Compile   string        `yaml:"compile"`
	Artifact  string        `yaml:"artifact"`
	Run       string        `yaml:"run"`
	CompileT  time.Duration `yaml:"compileTimeout"`
	CompileMB int64         `yaml:"compileMemoryMB"`
}

// AppConfig holds the judged configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logger    logger.Config      `yaml:"logger"`
	Sandbox   SandboxConfig      `yaml:"sandbox"`
	Judge     JudgeConfig        `yaml:"judge"`
	Languages []LanguageOverride `yaml:"languages"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if cfg.Sandbox.Addr == "" {
		return nil, fmt.Errorf("sandbox addr is required")
	}
	if cfg.Sandbox.TestlibPath == "" {
		cfg.Sandbox.TestlibPath = defaultTestlibPath
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.Workers <= 0 {
		cfg.Judge.Workers = defaultWorkers
	}
	// Zero or absent selects the default; a negative value spills every
	// submission (used by stress setups and tests).
	if cfg.Judge.SpillThreshold == 0 {
		cfg.Judge.SpillThreshold = defaultSpillThreshold
	} else if cfg.Judge.SpillThreshold < 0 {
		cfg.Judge.SpillThreshold = 0
	}
	if cfg.Judge.BucketSize <= 0 {
		cfg.Judge.BucketSize = defaultBucketSize
	}
	if cfg.Judge.DataRoot == "" {
		cfg.Judge.DataRoot = defaultDataRoot
	}
	if cfg.Judge.ProblemsRoot == "" {
		cfg.Judge.ProblemsRoot = defaultProblemsRoot
	}
	if cfg.Judge.SubmissionsRoot == "" {
		cfg.Judge.SubmissionsRoot = defaultSubmissionsRoot
	}
	return &cfg, nil
}

// buildLanguageTable converts configured overrides into a language table.
func buildLanguageTable(overrides []LanguageOverride) (sandbox.LanguageTable, error) {
	if len(overrides) == 0 {
		return nil, nil
	}
	table := make(sandbox.LanguageTable, len(overrides))
	for _, o := range overrides {
		if o.Name == "" || o.Source == "" || o.Run == "" {
			return nil, fmt.Errorf("language override needs name, source and run")
		}
		runArgs, err := shlex.Split(o.Run)
		if err != nil {
			return nil, fmt.Errorf("language %s: parse run command failed: %w", o.Name, err)
		}
		spec := sandbox.LanguageSpec{
			SourceName: o.Source,
			RunArgs:    runArgs,
		}
		if o.Compile != "" {
			if o.Artifact == "" {
				return nil, fmt.Errorf("language %s: compiled language needs an artifact name", o.Name)
			}
			compileArgs, err := shlex.Split(o.Compile)
			if err != nil {
				return nil, fmt.Errorf("language %s: parse compile command failed: %w", o.Name, err)
			}
			spec.CompileArgs = compileArgs
			spec.ArtifactName = o.Artifact
			spec.CompileCPUNS = int64(o.CompileT)
			if spec.CompileCPUNS == 0 {
				spec.CompileCPUNS = int64(10 * time.Second)
			}
			spec.CompileMemoryBytes = o.CompileMB << 20
			if spec.CompileMemoryBytes == 0 {
				spec.CompileMemoryBytes = 512 << 20
			}
		}
		table[o.Name] = spec
	}
	return table, nil
}
