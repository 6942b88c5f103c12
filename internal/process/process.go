// Package process implements the process-runner collaborator (§1, §5):
// given an executable path, argv, working directory, environment and a
// cancellation signal, it runs the child to completion and returns its exit
// code plus captured stdout/stderr, following the teacher's
// exec.CommandContext usage in internal/build/build.go generalized into a
// named, mockable collaborator instead of an inline exec.Command call.
package process

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Invocation is one child-process request (§5, "Process runner").
type Invocation struct {
	Path string
	Argv []string
	Dir  string
	Env  []string
}

// Result is what the process runner hands back to its caller: exit code
// plus the complete, task-atomic stdout/stderr blobs (§4.8, "Ordering
// guarantees": captured as a complete blob per task before being emitted to
// the log sink).
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner is the process-runner collaborator. Implementations must honor
// ctx cancellation by terminating the child (§4.8, "Cancellation
// semantics").
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// GracePeriod is how long Exec waits after sending SIGTERM before
// escalating to SIGKILL on cancellation (§4.8, "a terminate signal, then a
// kill signal after a grace period").
const GracePeriod = 5 * time.Second

// Exec is the real Runner, spawning an actual child process.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, inv Invocation) (Result, error) {
	cmd := exec.Command(inv.Path, inv.Argv...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, xerrors.Errorf("%s: %w", inv.Path, err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		return resultFrom(cmd, stdout.Bytes(), stderr.Bytes(), err)
	case <-ctx.Done():
		terminate(cmd)
		select {
		case err := <-waitErr:
			return resultFrom(cmd, stdout.Bytes(), stderr.Bytes(), err)
		case <-time.After(GracePeriod):
			kill(cmd)
			err := <-waitErr
			return resultFrom(cmd, stdout.Bytes(), stderr.Bytes(), err)
		}
	}
}

func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		unix.Kill(cmd.Process.Pid, unix.SIGTERM)
	}
}

func kill(cmd *exec.Cmd) {
	if cmd.Process != nil {
		unix.Kill(cmd.Process.Pid, unix.SIGKILL)
	}
}

func resultFrom(cmd *exec.Cmd, stdout, stderr []byte, waitErr error) (Result, error) {
	res := Result{Stdout: stdout, Stderr: stderr}
	if waitErr == nil {
		res.ExitCode = 0
		return res, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, xerrors.Errorf("%s: %w", cmd.Path, waitErr)
}
