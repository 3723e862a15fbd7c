package workspace

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Picker asks the user for a working directory. An empty result with a nil
// error means the user declined to choose one.
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// PromptPicker reads a path from a line-oriented reader. A blank line picks
// Default; "-" declines.
type PromptPicker struct {
	In      io.Reader
	Out     io.Writer
	Default string
}

// Pick prompts once and returns the resolved directory.
func (p *PromptPicker) Pick(ctx context.Context) (string, error) {
	def := p.Default
	if def == "" {
		def, _ = os.Getwd()
	}
	if p.Out != nil {
		fmt.Fprintf(p.Out, "Working directory [%s]: ", def)
	}

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- result{line, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if r.err != nil && r.err != io.EOF {
		return "", fmt.Errorf("read directory: %w", r.err)
	}

	line := strings.TrimSpace(r.line)
	switch {
	case line == "-":
		return "", nil
	case line == "" && r.err == io.EOF:
		return "", nil
	case line == "":
		line = def
	}
	return Resolve(line)
}
