// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	// A new process group so CTRL_BREAK_EVENT can be delivered to the
	// encoder without hitting the daemon's own console.
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// kill approximates POSIX signalling on Windows. The graceful phase sends a
// console break event (the documented way to make ffmpeg write its trailer);
// SIGKILL maps to TerminateProcess.
func kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}

	dll, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return err
	}
	proc, err := dll.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return err
	}
	// CTRL_BREAK_EVENT = 1, delivered to the child's process group.
	r, _, callErr := proc.Call(uintptr(1), uintptr(cmd.Process.Pid))
	if r == 0 {
		return callErr
	}
	return nil
}
