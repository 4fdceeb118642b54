package app

import (
	"context"
	"fmt"

	"github.com/vk/sugarpipe/internal/buildconfig"
	"github.com/vk/sugarpipe/internal/crawl"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/extract"
	"github.com/vk/sugarpipe/internal/query"
	"github.com/vk/sugarpipe/internal/rewrite"
	"github.com/vk/sugarpipe/internal/workspace"
)

// Result summarizes a completed run.
type Result struct {
	Layout  *workspace.Layout
	Graphs  []string
	Scripts []extract.Script
	Config  *buildconfig.BuildConfig
}

// Run executes one pipeline run for the configured target. Stages run
// strictly in sequence and the first fatal error ends the run.
func (a *App) Run(ctx context.Context) (res *Result, err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
		defer a.closeHealthcheckServer()
	}
	defer func() {
		if err != nil {
			a.setStage(StageFailed)
		}
	}()

	a.setStage(StageWorkspace)
	layout, err := workspace.Prepare(ctx, a.config.WorkspacePath, a.config.PolicyPath)
	if err != nil {
		return nil, err
	}
	res = &Result{Layout: layout}

	var toolPaths []string
	if a.config.ToolsPath != "" {
		toolPaths = append(toolPaths, a.config.ToolsPath)
	}
	tools, err := a.loader.Load(ctx, toolPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load toolchain: %w", err)
	}

	a.setStage(StageCrawl)
	res.Graphs, err = crawl.NewGenerator(a.runner, tools.Crawl).Generate(ctx, crawl.Params{
		BinaryPath:   a.config.BinaryPath,
		URL:          a.config.URL,
		DwellSeconds: a.config.DwellSeconds,
		OutputDir:    layout.Graphs,
		Debug:        a.config.Debug,
		FilterList:   a.config.FilterList,
	})
	if err != nil {
		return nil, err
	}

	// The index lives for this run only and is handed to the assembler below.
	a.setStage(StageExtract)
	index := extract.Index{}
	extractor := extract.New(query.NewClient(a.runner, tools.Query), layout.Output, a.config.FilterList)
	for _, graph := range res.Graphs {
		scripts, err := extractor.ProcessGraph(ctx, graph, index)
		if err != nil {
			return nil, fmt.Errorf("failed to process graph %s: %w", graph, err)
		}
		res.Scripts = append(res.Scripts, scripts...)
	}

	// Every script write has completed at this point; the assembler may read the output directory.
	a.setStage(StageAssemble)
	policy, err := buildconfig.LoadPolicy(layout.Policy)
	if err != nil {
		return nil, err
	}
	res.Config, err = buildconfig.Assemble(ctx, policy, layout, index)
	if err != nil {
		return nil, err
	}
	if err := res.Config.WriteFile(layout.Config); err != nil {
		return nil, err
	}

	a.setStage(StageRewrite)
	if err := rewrite.NewInvoker(a.runner, tools.Rewrite).Invoke(ctx, layout.Config); err != nil {
		return nil, err
	}

	a.setStage(StageDone)
	a.logger.Info("🏁 Pipeline finished.", "scripts", len(res.Scripts), "config", layout.Config)
	return res, nil
}
