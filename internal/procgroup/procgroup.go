// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup implements the shared two-phase shutdown procedure for
// supervised subprocesses (relay and encoder): a graceful signal, a bounded
// wait, then SIGKILL to the whole process group.
package procgroup

import (
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/courtcast/courtcast/internal/metrics"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)

// Set configures the command to start in a new process group.
// Mandatory for Terminate to reap the whole subprocess tree.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate attempts to gracefully stop a process group.
// It sends the graceful signal, waits for the process to exit (via the
// provided wait channel), and escalates to SIGKILL after grace.
// It consumes and returns the error from waitCh.
// Safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, graceful syscall.Signal, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	recordSignal(signalName(graceful), kill(cmd, graceful))

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	// Grace period exceeded; force kill and always drain waitCh so the
	// process is reaped even when SIGKILL delivery errored.
	recordSignal("SIGKILL", kill(cmd, syscall.SIGKILL))
	return <-waitCh
}

func recordSignal(sig string, err error) {
	switch {
	case err == nil:
		metrics.IncProcTerminate(sig, "sent")
	case isGone(err):
		metrics.IncProcTerminate(sig, "esrch")
	default:
		metrics.IncProcTerminate(sig, "error")
	}
}

func isGone(err error) bool {
	return strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	default:
		return sig.String()
	}
}
