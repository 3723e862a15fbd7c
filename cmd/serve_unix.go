//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs detaches the child process into its own session on Unix.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals ends serve, mcp and workflow runs.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// sigTERM asks a serve daemon to drain and exit.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL is sent when the daemon ignores sigTERM.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
