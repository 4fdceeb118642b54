package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/vk/sugarpipe/internal/ctxlog"
)

// Runner executes an external command and returns its captured stdout.
//
// Run blocks until the process exits. A process that starts but exits with a
// nonzero status is reported as an *ExitError so callers can tell "the tool
// said no" apart from "the tool could not be run".
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitError reports a command that ran to completion with a nonzero status.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.Code, e.Stderr)
}

// ExecRunner is the os/exec backed Runner used in production.
type ExecRunner struct {
	// Stderr, when set, additionally receives the child's stderr as it is
	// produced. It is used to surface crawler and rewriter progress in debug mode.
	Stderr io.Writer
}

// NewExecRunner creates an ExecRunner. stderr may be nil.
func NewExecRunner(stderr io.Writer) *ExecRunner {
	return &ExecRunner{Stderr: stderr}
}

// Run implements the Runner interface.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running external command.", "command", name, "args", args)

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &ExitError{
				Name:   name,
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}

	logger.Debug("External command finished.", "command", name, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}
