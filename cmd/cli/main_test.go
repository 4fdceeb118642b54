package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/sugarpipe/internal/cli"
	"github.com/vk/sugarpipe/internal/crawl"
	"github.com/vk/sugarpipe/internal/workspace"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_MissingPolicyFailsBeforeCrawling(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	root := filepath.Join(dir, "gen")
	args := []string{
		"-b", filepath.Join(dir, "chrome"),
		"-u", "https://news.example/",
		"-p", filepath.Join(dir, "missing-policy.json"),
		"-w", root,
		"--tools", filepath.Join(dir, "no-such-tools.hcl"),
	}
	logs := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, logs, args)

	// --- Assert ---
	var cfgErr *workspace.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *workspace.ConfigError, got %v", err)
	_, statErr := os.Stat(root)
	require.True(t, os.IsNotExist(statErr), "no staging tree should be created")
}

func TestRun_MissingPolicyWinsOverInvalidCrawlParams(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	root := filepath.Join(dir, "gen")
	args := []string{
		"-b", filepath.Join(dir, "chrome"),
		"-u", "https://news.example/",
		"-t", "0",
		"--debug", "trace",
		"-p", filepath.Join(dir, "missing-policy.json"),
		"-w", root,
	}

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, args)

	// --- Assert ---
	var cfgErr *workspace.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *workspace.ConfigError, got %v", err)
	var exitErr *cli.ExitError
	require.False(t, errors.As(err, &exitErr), "a missing policy exits 1, not with a usage code")
}

func TestRun_InvalidDwellIsReportedByCrawlStage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policy, []byte(`{"policy": {}}`), 0o644))
	args := []string{
		"-b", filepath.Join(dir, "chrome"),
		"-u", "https://news.example/",
		"-t", "0",
		"-p", policy,
		"-w", filepath.Join(dir, "gen"),
	}

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, args)

	// --- Assert ---
	var vErr *crawl.ValidationError
	require.True(t, errors.As(err, &vErr), "expected *crawl.ValidationError, got %v", err)
	require.Contains(t, vErr.Diagnostic, "DwellSeconds must be greater than 0")
}
