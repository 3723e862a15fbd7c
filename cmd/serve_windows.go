//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op on Windows (no Setsid equivalent).
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals ends serve, mcp and workflow runs.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// sigTERM maps to TerminateProcess, so stop is never graceful here.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL maps to TerminateProcess.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
