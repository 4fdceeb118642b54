package buildconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/fsutil"
	"github.com/vk/sugarpipe/internal/workspace"
)

// GraphPattern matches the graph files written by the crawl engine.
const GraphPattern = "*.graphml"

// Bundle locates the rule list and resource file the rewrite engine emits
// when bundling.
type Bundle struct {
	Rules     string `json:"rules"`
	Resources string `json:"resources"`
}

// Target configures the rewriting of one extracted script.
type Target struct {
	Patterns []string `json:"patterns"`
	Policy   any      `json:"policy"`
}

// BuildConfig is the configuration handed to the rewrite engine.
type BuildConfig struct {
	Graphs  string
	Code    string
	Trace   string
	Report  string
	Bundle  Bundle
	Targets map[string]Target
	// Extra carries pass-through fields from the policy configuration.
	Extra map[string]any
}

// MarshalJSON flattens Extra into the top level. Named fields take precedence
// over pass-through fields of the same name, and no policy key is ever emitted.
func (c *BuildConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+6)
	for k, v := range c.Extra {
		out[k] = v
	}
	delete(out, PolicyKey)

	targets := c.Targets
	if targets == nil {
		targets = map[string]Target{}
	}
	out["graphs"] = c.Graphs
	out["code"] = c.Code
	out["trace"] = c.Trace
	out["report"] = c.Report
	out["bundle"] = c.Bundle
	out["targets"] = targets
	return json.Marshal(out)
}

// Assemble builds the configuration from the policy, the staging layout and
// the name index populated during extraction. It enumerates layout.Output,
// so it must only be called after extraction has returned.
func Assemble(ctx context.Context, policy *PolicyConfig, layout *workspace.Layout, index map[string]string) (*BuildConfig, error) {
	logger := ctxlog.FromContext(ctx)

	cfg := &BuildConfig{
		Graphs:  filepath.Join(layout.Graphs, GraphPattern),
		Code:    layout.Output,
		Trace:   layout.Trace,
		Report:  layout.Report,
		Bundle:  Bundle{Rules: layout.BundleRules, Resources: layout.BundleResources},
		Targets: make(map[string]Target),
		Extra:   policy.Extra,
	}

	files, err := fsutil.ListFiles(layout.Output)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		key := fsutil.Stem(file, filepath.Ext(file))
		target := Target{Patterns: []string{}, Policy: policy.Policy}
		if u, ok := index[key]; ok {
			target.Patterns = append(target.Patterns, u)
		} else {
			logger.Warn("Output file has no recorded source URL.", "file", file)
		}
		cfg.Targets[key] = target
	}

	logger.Info("Build configuration assembled.", "targets", len(cfg.Targets))
	return cfg, nil
}

// WriteFile serializes the configuration as indented JSON.
func (c *BuildConfig) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode build configuration: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write build configuration %s: %w", path, err)
	}
	return nil
}
