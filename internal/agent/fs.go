package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errOutsideRoot = errors.New("path is outside the project root")

// resolvePath maps an agent-supplied path onto the filesystem. Relative paths
// are taken from root; the result must stay within root.
func resolvePath(root, p string) (string, error) {
	if p == "" {
		return "", errors.New("path is empty")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return p, nil
}

func readTextFile(root string, params ReadTextFileParams) (ReadTextFileResult, error) {
	path, err := resolvePath(root, params.Path)
	if err != nil {
		return ReadTextFileResult{}, &RPCError{Code: CodeInternalError, Message: "File read error: " + err.Error()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ReadTextFileResult{}, &RPCError{Code: CodeInternalError, Message: "File read error: " + err.Error()}
	}
	return ReadTextFileResult{Content: sliceLines(string(data), params.Line, params.Limit)}, nil
}

func writeTextFile(root string, params WriteTextFileParams) error {
	path, err := resolvePath(root, params.Path)
	if err != nil {
		return &RPCError{Code: CodeInternalError, Message: "File write error: " + err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("File write error: %v", err)}
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("File write error: %v", err)}
	}
	return nil
}

// sliceLines returns limit lines starting at the 1-based line. Nil bounds
// mean the start or end of the content.
func sliceLines(content string, line, limit *int) string {
	if line == nil && limit == nil {
		return content
	}
	lines := strings.SplitAfter(content, "\n")
	start := 0
	if line != nil && *line > 1 {
		start = *line - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit != nil && *limit >= 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "")
}
