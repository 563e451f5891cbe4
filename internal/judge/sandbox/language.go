package sandbox

import (
	"strings"
	"time"
)

// LanguageSpec describes how one language is prepared and run inside the
// sandbox. An empty CompileArgs means the source is cached as-is and
// interpreted at run time.
type LanguageSpec struct {
	SourceName         string
	CompileArgs        []string
	ArtifactName       string
	RunArgs            []string
	CompileCPUNS       int64
	CompileMemoryBytes int64
}

// LanguageTable maps canonical language names to their specs.
type LanguageTable map[string]LanguageSpec

// language aliases accepted at intake
var languageAliases = map[string]string{
	"py":      "python3",
	"python":  "python3",
	"python3": "python3",
	"pypy":    "pypy",
	"cpp":     "cpp",
	"java":    "java",
}

// DefaultLanguages returns the built-in language table.
func DefaultLanguages() LanguageTable {
	return LanguageTable{
		"cpp": {
			SourceName:         "main.cpp",
			CompileArgs:        []string{"/usr/bin/g++", "-O2", "-pipe", "-std=gnu++17", "-o", "a", "main.cpp"},
			ArtifactName:       "a",
			RunArgs:            []string{"a"},
			CompileCPUNS:       int64(10 * time.Second),
			CompileMemoryBytes: 512 << 20,
		},
		"java": {
			SourceName:         "Main.java",
			CompileArgs:        []string{"/usr/bin/javac", "Main.java"},
			ArtifactName:       "Main.class",
			RunArgs:            []string{"/usr/bin/java", "Main"},
			CompileCPUNS:       int64(10 * time.Second),
			CompileMemoryBytes: 1 << 30,
		},
		"python3": {
			SourceName: "main.py",
			RunArgs:    []string{"/usr/bin/python3", "main.py"},
		},
		"pypy": {
			SourceName: "main.py",
			RunArgs:    []string{"/usr/bin/pypy3", "main.py"},
		},
	}
}

// Merge overlays overrides onto the table. Override keys are canonical names;
// new languages may be introduced this way.
func (t LanguageTable) Merge(overrides LanguageTable) LanguageTable {
	out := make(LanguageTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Resolve maps an intake language name to its spec, following aliases.
func (t LanguageTable) Resolve(language string) (LanguageSpec, bool) {
	name := strings.ToLower(strings.TrimSpace(language))
	if canonical, ok := languageAliases[name]; ok {
		name = canonical
	}
	spec, ok := t[name]
	return spec, ok
}

// withMainName rewrites the spec for a problem-level source filename
// override. For Java the main class, the compiled artifact and the run
// command all follow the file name.
func (s LanguageSpec) withMainName(mainName string) LanguageSpec {
	if mainName == "" || mainName == s.SourceName {
		return s
	}
	old := s.SourceName
	out := s
	out.SourceName = mainName

	out.CompileArgs = make([]string, len(s.CompileArgs))
	for i, arg := range s.CompileArgs {
		if arg == old {
			out.CompileArgs[i] = mainName
		} else {
			out.CompileArgs[i] = arg
		}
	}

	out.RunArgs = make([]string, len(s.RunArgs))
	copy(out.RunArgs, s.RunArgs)

	if strings.HasSuffix(old, ".java") && strings.HasSuffix(mainName, ".java") {
		oldClass := strings.TrimSuffix(old, ".java")
		newClass := strings.TrimSuffix(mainName, ".java")
		if s.ArtifactName == oldClass+".class" {
			out.ArtifactName = newClass + ".class"
		}
		for i, arg := range out.RunArgs {
			if arg == oldClass {
				out.RunArgs[i] = newClass
			}
		}
		return out
	}

	// Interpreted languages run the source file directly.
	if len(s.CompileArgs) == 0 {
		for i, arg := range out.RunArgs {
			if arg == old {
				out.RunArgs[i] = mainName
			}
		}
	}
	return out
}
