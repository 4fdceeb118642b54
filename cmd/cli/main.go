package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/vk/sugarpipe/internal/app"
	"github.com/vk/sugarpipe/internal/cli"
	"github.com/vk/sugarpipe/internal/hcl_adapter"
	"github.com/vk/sugarpipe/internal/toolexec"
)

// main is the entrypoint for the sugarpipe application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Help text goes to outW, logs and child process diagnostics to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	var childStderr io.Writer
	if appConfig.Debug == "debug" {
		childStderr = errW
	}

	pipeline := app.NewApp(errW, appConfig, hcl_adapter.NewLoader(), toolexec.NewExecRunner(childStderr))
	_, err = pipeline.Run(ctx)
	return err
}
