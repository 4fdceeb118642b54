// Package rewrite invokes the external rewriting engine on an assembled
// build configuration.
package rewrite

import (
	"context"
	"fmt"

	"github.com/vk/sugarpipe/internal/config"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/toolexec"
)

// Invoker runs the rewrite engine.
type Invoker struct {
	runner toolexec.Runner
	tool   config.Tool
}

// NewInvoker creates an Invoker that launches tool through runner.
func NewInvoker(runner toolexec.Runner, tool config.Tool) *Invoker {
	return &Invoker{runner: runner, tool: tool}
}

// Args returns the engine arguments requesting ingestion, reporting,
// rewriting and bundling for configPath.
func Args(configPath string) []string {
	return []string{"--config", configPath, "--ingest", "--report", "--rewrite", "--bundle"}
}

// Invoke blocks until the engine exits. Any failure is returned as is; there
// is no retry.
func (i *Invoker) Invoke(ctx context.Context, configPath string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Running rewrite engine.", "config", configPath)

	name, args := i.tool.Argv(Args(configPath)...)
	out, err := i.runner.Run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("rewrite engine failed: %w", err)
	}
	if len(out) > 0 {
		logger.Debug("Rewrite engine output.", "stdout", string(out))
	}

	logger.Info("Rewrite engine finished.")
	return nil
}
