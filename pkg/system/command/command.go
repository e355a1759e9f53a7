//go:build linux

// Package command runs external programs with a hard upper bound on how long
// the caller can be blocked.
//
// Every run follows the same escalation path: spawn the program in its own
// process group, wait for it until Spec.Timeout, then send SIGTERM to the
// whole group, wait Spec.Grace, and finally SIGKILL the group. Whatever the
// program wrote to stdout and stderr up to that point is returned.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultGrace is used when Spec.Grace is zero.
const DefaultGrace = time.Second

// Spec describes one invocation.
type Spec struct {
	Path    string
	Args    []string
	Env     []string // appended to the inherited environment
	Timeout time.Duration
	Grace   time.Duration
}

// Result is what was collected from the child, however it ended.
type Result struct {
	PID      int
	Stdout   []byte
	Stderr   []byte
	ExitCode int // -1 when the process was terminated by a signal
	Elapsed  time.Duration

	// TimedOut is set when Spec.Timeout elapsed before the program exited.
	TimedOut bool
	// Canceled is set when the caller's context ended first.
	Canceled bool
	// Killed is set when SIGTERM was not enough and SIGKILL was sent.
	Killed bool
}

// Completed reports whether the program exited on its own.
func (r Result) Completed() bool { return !r.TimedOut && !r.Canceled }

// HasOutput reports whether anything was captured on stdout or stderr.
func (r Result) HasOutput() bool { return len(r.Stdout) > 0 || len(r.Stderr) > 0 }

// Run starts spec.Path and blocks until it exits or the escalation path has
// completed. A non-nil error means the program could not be started at all;
// in that case no process is left behind.
func Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.Path == "" {
		return Result{}, ErrNoPath
	}
	if spec.Timeout <= 0 {
		return Result{}, ErrNoTimeout
	}
	grace := spec.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Grandchildren may inherit the pipes; do not wait on them forever.
	cmd.WaitDelay = grace
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("command: start %s: %w", spec.Path, err)
	}

	res := Result{PID: cmd.Process.Pid}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.TimedOut = true
		waitErr, res.Killed = escalate(res.PID, done, grace)
	case <-ctx.Done():
		res.Canceled = true
		waitErr, res.Killed = escalate(res.PID, done, grace)
	}

	res.Elapsed = time.Since(start)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.ExitCode = exitCode(cmd, waitErr)
	return res, nil
}

// escalate terminates the process group and returns Wait's error once the
// child is gone.
func escalate(pid int, done <-chan error, grace time.Duration) (error, bool) {
	_ = signalGroup(pid, unix.SIGTERM)

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case err := <-done:
		return err, false
	case <-t.C:
	}

	_ = signalGroup(pid, unix.SIGKILL)
	return <-done, true
}

func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// Group already gone; make sure the leader is too.
		return unix.Kill(pid, sig)
	}
	return err
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
