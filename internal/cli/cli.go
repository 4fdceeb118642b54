package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/sugarpipe/internal/app"
)

// version is set at build time via -ldflags.
var version = "dev"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type flags struct {
	binary          string
	url             string
	secs            int
	debug           string
	filterList      string
	policy          string
	workspace       string
	tools           string
	logFormat       string
	healthcheckPort int
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var f flags
	ran := false
	cmd := &cobra.Command{
		Use:   "sugarpipe -b <browser> -u <url> [options]",
		Short: "Crawl a page, extract ad-block implicated scripts and sugar-coat them",
		Long: `sugarpipe records a browsing session for one URL as a page graph, finds the
network requests matching an ad-block filter list, extracts every script those
requests caused to load, and runs the rewriting engine over them.

Every run starts from a clean workspace (default: ./gen).`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ran = true
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	fs := cmd.Flags()
	fs.SortFlags = false
	fs.StringVarP(&f.binary, "binary", "b", "", "Path to the page-graph instrumented browser build.")
	fs.StringVarP(&f.url, "url", "u", "", "Target address to crawl.")
	fs.IntVarP(&f.secs, "secs", "t", 30, "Crawl dwell time in seconds.")
	fs.StringVar(&f.debug, "debug", "none", "Verbosity. Options: 'none' or 'debug'.")
	fs.StringVarP(&f.filterList, "filter-list", "l", "", "Path to the ad-block filter list.")
	fs.StringVarP(&f.policy, "policy", "p", "policy.json", "Path to the policy configuration file (JSON or YAML).")
	fs.StringVarP(&f.workspace, "workspace", "w", "gen", "Staging directory. Recreated on every run.")
	fs.StringVar(&f.tools, "tools", "", "HCL toolchain file or directory overriding the engine commands.")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	fs.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	_ = cmd.MarkFlagRequired("binary")
	_ = cmd.MarkFlagRequired("url")

	if len(args) == 0 {
		slog.Debug("No arguments provided, printing usage and exiting.")
		_ = cmd.Usage()
		return nil, true, nil
	}

	if err := cmd.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if !ran {
		// --help or --version was handled by cobra.
		return nil, true, nil
	}
	slog.Debug("Arguments parsed successfully.")

	// Crawl parameters such as the dwell time and debug level are validated by
	// the crawl stage, after the policy file has been checked.
	debug := strings.ToLower(f.debug)

	logFormat := strings.ToLower(f.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	config, err := app.NewConfig(app.Config{
		BinaryPath:      f.binary,
		URL:             f.url,
		DwellSeconds:    f.secs,
		Debug:           debug,
		FilterList:      f.filterList,
		PolicyPath:      f.policy,
		WorkspacePath:   f.workspace,
		ToolsPath:       f.tools,
		LogFormat:       logFormat,
		HealthcheckPort: f.healthcheckPort,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
