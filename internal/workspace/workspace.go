// Package workspace owns the on-disk staging tree of a pipeline run. Every
// run starts from a freshly recreated tree; nothing survives between runs.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/sugarpipe/internal/ctxlog"
)

// ConfigError reports a policy configuration file that is missing or unreadable.
type ConfigError struct {
	Path string
	Err  error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy configuration %s is not readable: %v", e.Path, e.Err)
}

// Unwrap returns the underlying file system error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Layout holds every path of the staging tree.
type Layout struct {
	Root            string
	Graphs          string
	Output          string
	Config          string
	Trace           string
	Report          string
	BundleRules     string
	BundleResources string
	Policy          string
}

// NewLayout computes the staging paths under root without touching the disk.
func NewLayout(root, policyPath string) *Layout {
	return &Layout{
		Root:            root,
		Graphs:          filepath.Join(root, "graphs"),
		Output:          filepath.Join(root, "output"),
		Config:          filepath.Join(root, "config.json"),
		Trace:           filepath.Join(root, "trace.json"),
		Report:          filepath.Join(root, "report.html"),
		BundleRules:     filepath.Join(root, "rules.txt"),
		BundleResources: filepath.Join(root, "resources.json"),
		Policy:          policyPath,
	}
}

// Prepare checks that the policy file is readable, then wipes root and
// recreates it with empty graphs and output directories. A missing policy
// file leaves any previous staging tree untouched.
func Prepare(ctx context.Context, root, policyPath string) (*Layout, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Preparing workspace.", "root", root, "policy", policyPath)

	if err := checkReadable(policyPath); err != nil {
		return nil, &ConfigError{Path: policyPath, Err: err}
	}

	if root == "" || filepath.Clean(root) == string(filepath.Separator) {
		return nil, fmt.Errorf("refusing to use %q as the workspace root", root)
	}

	layout := NewLayout(root, policyPath)

	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("failed to clear workspace %s: %w", root, err)
	}
	for _, dir := range []string{layout.Graphs, layout.Output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}

	logger.Info("Workspace ready.", "root", root)
	return layout, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}
