// Package crawl adapts the external crawl engine, which records a browsing
// session for one URL as one or more graph files.
package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/sugarpipe/internal/config"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/fsutil"
	"github.com/vk/sugarpipe/internal/toolexec"
)

// ErrNoGraphs is returned when the crawl finished without producing any graph file.
var ErrNoGraphs = errors.New("crawl produced no graph files")

// Generator runs the crawl engine.
type Generator struct {
	runner toolexec.Runner
	tool   config.Tool
}

// NewGenerator creates a Generator that launches tool through runner.
func NewGenerator(runner toolexec.Runner, tool config.Tool) *Generator {
	return &Generator{runner: runner, tool: tool}
}

// Generate validates p, runs the crawl to completion (including the full
// dwell time) and returns the graph files found in p.OutputDir.
func (g *Generator) Generate(ctx context.Context, p Params) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	if err := p.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Crawling target.", "url", p.URL, "dwell_seconds", p.DwellSeconds)
	name, args := g.tool.Argv(p.args()...)
	out, err := g.runner.Run(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("crawl engine failed: %w", err)
	}
	if len(out) > 0 {
		logger.Debug("Crawl engine output.", "stdout", string(out))
	}

	graphs, err := fsutil.ListFiles(p.OutputDir)
	if err != nil {
		return nil, err
	}
	if len(graphs) == 0 {
		return nil, ErrNoGraphs
	}

	logger.Info("Crawl finished.", "graphs", len(graphs))
	return graphs, nil
}
