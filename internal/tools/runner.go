package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner abstracts host command execution so callers can be tested without a shell.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error)
}

// ExecRunner executes commands on the local host. WaitDelay bounds how long
// Run waits on inherited pipes after ctx kills the command; zero waits forever.
type ExecRunner struct {
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	cmd.WaitDelay = r.WaitDelay
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), exitStatus(err), err
}

// exitStatus maps a Run error to a shell-style status: 127 when the binary
// could not be started, 1 for any other failure without an exit code.
func exitStatus(err error) int32 {
	var exitErr *exec.ExitError
	var execErr *exec.Error
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return int32(exitErr.ExitCode())
	case errors.As(err, &execErr):
		return 127
	default:
		return 1
	}
}

// CommandError reports a command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int32
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("tools: %q exited %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Exec runs name with args and folds a failure into a *CommandError.
func Exec(ctx context.Context, r CommandRunner, name string, args ...string) ([]byte, error) {
	stdout, stderr, code, err := r.Run(ctx, name, args...)
	if err != nil {
		return stdout, &CommandError{
			Command:  strings.Join(append([]string{name}, args...), " "),
			ExitCode: code,
			Stderr:   strings.TrimSpace(string(stderr)),
			Err:      err,
		}
	}
	return stdout, nil
}

// Shell runs line through sh -c.
func Shell(ctx context.Context, r CommandRunner, line string) ([]byte, error) {
	return Exec(ctx, r, "sh", "-c", line)
}
