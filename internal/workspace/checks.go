package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Check is one readiness check of a project directory for agent work.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// agentInstructionFiles are read by coding agents when present at the root.
var agentInstructionFiles = []string{"CLAUDE.md", "AGENTS.md", ".claude/CLAUDE.md"}

// RunChecks evaluates the directory the agent will work in. Failed checks are
// advisory; they never block initialization.
func RunChecks(path string, info Info) []Check {
	return []Check{
		checkRepo(info),
		checkClean(info),
		checkAnyFile(path, "Agent instructions", agentInstructionFiles),
		checkAnyFile(path, "README", []string{"README.md", "README", "README.rst"}),
		checkAnyFile(path, "Ignore file", []string{".gitignore"}),
		checkHasTests(path, info.Language),
	}
}

func checkRepo(info Info) Check {
	if info.IsRepo {
		return Check{Name: "Git repository", Passed: true, Detail: info.RepoRoot}
	}
	return Check{Name: "Git repository", Detail: "not a git repository; agent edits cannot be reviewed with git diff"}
}

func checkClean(info Info) Check {
	switch {
	case !info.IsRepo:
		return Check{Name: "Clean tree", Detail: "no repository"}
	case info.Dirty:
		return Check{Name: "Clean tree", Detail: "uncommitted changes on " + info.Branch}
	default:
		return Check{Name: "Clean tree", Passed: true, Detail: "no uncommitted changes"}
	}
}

func checkAnyFile(base, label string, names []string) Check {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(base, name)); err == nil {
			return Check{Name: label, Passed: true, Detail: name + " found"}
		}
	}
	return Check{Name: label, Detail: names[0] + " missing"}
}

// testSuffixes maps a language to file name patterns that indicate tests.
var testSuffixes = map[string][]string{
	"go":         {"_test.go"},
	"javascript": {".test.js", ".test.ts", ".spec.js", ".spec.ts"},
	"rust":       nil, // tests/ directory only
	"python":     {"_test.py"},
}

func checkHasTests(path, language string) Check {
	suffixes, ok := testSuffixes[language]
	if !ok {
		return Check{Name: "Tests", Detail: "unknown language"}
	}

	found := false
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules", "vendor", "target":
				return filepath.SkipDir
			}
			// Rust and Python keep tests in a tests/ directory.
			if d.Name() == "tests" && (language == "rust" || language == "python") && p != path {
				found = true
				return filepath.SkipAll
			}
			return nil
		}
		base := d.Name()
		if language == "python" && strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py") {
			found = true
			return filepath.SkipAll
		}
		for _, s := range suffixes {
			if strings.HasSuffix(base, s) {
				found = true
				return filepath.SkipAll
			}
		}
		return nil
	})

	if found {
		return Check{Name: "Tests", Passed: true, Detail: "test files found"}
	}
	return Check{Name: "Tests", Detail: "no test files found"}
}
