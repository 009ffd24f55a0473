package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ExecResult is the raw outcome of one executor invocation
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor turns a prompt/code payload into stdout/stderr/exit-code under the
// caller's context deadline. The runtime does not assume the executor enforces
// the deadline itself; wall-clock time is measured outside.
type Executor interface {
	Execute(ctx context.Context, prompt, code string) (*ExecResult, error)
}

// ShellExecutor runs payloads through the local shell. When a code payload is
// present it is written to a temp script and executed; otherwise the prompt is
// run as a shell command line.
type ShellExecutor struct {
	Shell string // defaults to /bin/sh
}

// NewShellExecutor creates a shell executor
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "/bin/sh"}
}

// Execute implements Executor
func (e *ShellExecutor) Execute(ctx context.Context, prompt, code string) (*ExecResult, error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var cmd *exec.Cmd
	if code != "" {
		script, cleanup, err := writeScript(code)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		cmd = exec.CommandContext(ctx, shell, script)
		cmd.Env = append(os.Environ(), "TASK_PROMPT="+prompt)
	} else {
		cmd = exec.CommandContext(ctx, shell, "-c", prompt)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		// Context cancellation or the process never started
		return result, err
	}

	return result, nil
}

func writeScript(code string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "execq-task-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create script dir: %w", err)
	}
	path := filepath.Join(dir, "task.sh")
	if err := os.WriteFile(path, []byte(code), 0700); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("failed to write script: %w", err)
	}
	return path, func() { os.RemoveAll(dir) }, nil
}
