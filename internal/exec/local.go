package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	nerrors "github.com/nso-developer/nsocmd/internal/errors"
)

// DefaultShell interprets invocations. The formatter's quoting targets
// POSIX sh; $SHELL is not consulted.
const DefaultShell = "/bin/sh"

// LocalExecutor runs invocations with "<shell> -c" on this machine.
type LocalExecutor struct {
	Shell   string
	WorkDir string
}

// NewLocalExecutor returns a LocalExecutor using DefaultShell.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{Shell: DefaultShell}
}

// Run executes invocation and captures combined stdout/stderr.
// Cancelling ctx kills the shell.
func (l *LocalExecutor) Run(ctx context.Context, invocation string) (*Result, error) {
	shell := l.Shell
	if shell == "" {
		shell = DefaultShell
	}

	command := exec.CommandContext(ctx, shell, "-c", invocation)
	if l.WorkDir != "" {
		command.Dir = l.WorkDir
	}

	// Children left behind by a killed shell must not hold Wait open.
	command.WaitDelay = time.Second

	var out bytes.Buffer
	command.Stdout = &out
	command.Stderr = &out

	start := time.Now()
	runErr := command.Run()
	res := &Result{Output: out.Bytes(), Duration: time.Since(start)}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, nerrors.Wrap(ctxErr, "Command was interrupted")
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// The shell itself couldn't be started.
		res.ExitCode = -1
		return res, nerrors.WrapWithCode(runErr, nerrors.ErrTransport,
			"Couldn't start "+shell,
			"Make sure the shell exists and is executable.")
	}

	return res, nil
}
