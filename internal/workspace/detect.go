package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// markers maps a file found at the project root to the language it implies,
// checked in order.
var markers = []struct {
	file, language string
}{
	{"go.mod", "go"},
	{"package.json", "javascript"},
	{"Cargo.toml", "rust"},
	{"pyproject.toml", "python"},
	{"requirements.txt", "python"},
}

// DetectLanguage guesses the primary language of the project at path.
func DetectLanguage(path string) string {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(path, m.file)); err == nil {
			return m.language
		}
	}
	return ""
}

// GoVersion returns the go directive of path/go.mod.
func GoVersion(path string) (string, error) {
	return goModField(filepath.Join(path, "go.mod"), "go ")
}

// ModulePath returns the module path of path/go.mod.
func ModulePath(path string) (string, error) {
	return goModField(filepath.Join(path, "go.mod"), "module ")
}

func goModField(goModPath, prefix string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", fmt.Errorf("open go.mod: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read go.mod: %w", err)
	}
	return "", fmt.Errorf("field %q not found in %s", strings.TrimSpace(prefix), goModPath)
}
