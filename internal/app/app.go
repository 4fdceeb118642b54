package app

import (
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/sugarpipe/internal/config"
	"github.com/vk/sugarpipe/internal/toolexec"
)

// Stage names reported by the health check while a run is in progress.
const (
	StageIdle      = "idle"
	StageWorkspace = "workspace"
	StageCrawl     = "crawl"
	StageExtract   = "extract"
	StageAssemble  = "assemble"
	StageRewrite   = "rewrite"
	StageDone      = "done"
	StageFailed    = "failed"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger *slog.Logger
	config *Config
	loader config.Loader
	runner toolexec.Runner

	mu         sync.Mutex
	stage      string
	httpServer *http.Server
}

// NewApp is the constructor for the main application. logW receives the
// application's own isolated logger output.
func NewApp(logW io.Writer, cfg *Config, loader config.Loader, runner toolexec.Runner) *App {
	logger := newLogger(cfg.LogLevel(), cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	return &App{
		logger: logger,
		config: cfg,
		loader: loader,
		runner: runner,
		stage:  StageIdle,
	}
}

// Stage returns the pipeline stage currently executing.
func (a *App) Stage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stage
}

func (a *App) setStage(stage string) {
	a.mu.Lock()
	a.stage = stage
	a.mu.Unlock()
	a.logger.Debug("Entering stage.", "stage", stage)
}
