package hcl_adapter

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/sugarpipe/internal/config"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	// Environ supplies the variables exposed to expressions as `env`.
	// Defaults to os.Environ.
	Environ func() []string
}

// NewLoader creates a new HCL toolchain loader.
func NewLoader() *Loader {
	return &Loader{Environ: os.Environ}
}

// fileRoot is a struct used to decode all top-level blocks from a toolchain file.
type fileRoot struct {
	Tools []*toolBlock `hcl:"tool,block"`
}

// toolBlock mirrors a `tool "<name>" { ... }` block. Attributes are kept as
// raw expressions so they can be evaluated against the environment.
type toolBlock struct {
	Name      string         `hcl:"name,label"`
	Command   hcl.Expression `hcl:"command,optional"`
	Args      hcl.Expression `hcl:"args,optional"`
	GraphFlag hcl.Expression `hcl:"graph_flag,optional"`
}

// Load parses every .hcl file found under paths and applies its tool blocks
// over the default toolchain. Later files win over earlier ones.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Toolchain, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL toolchain loader started.", "path_count", len(paths))

	toolchain := config.DefaultToolchain()

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := envEvalContext(l.environ())

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, block := range root.Tools {
			tool, err := toolchain.Lookup(block.Name)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			if err := l.applyTool(ctx, tool, block, evalCtx); err != nil {
				return nil, fmt.Errorf("in %s: tool %q: %w", file, block.Name, err)
			}
			logger.Debug("Applied tool override.", "tool", tool.Name, "command", tool.Command, "args", tool.Args)
		}
	}

	logger.Debug("HCL toolchain loading complete.", "files", len(hclFiles))
	return toolchain, nil
}

// applyTool evaluates the attributes that were actually written in block and
// copies them onto tool.
func (l *Loader) applyTool(ctx context.Context, tool *config.Tool, block *toolBlock, evalCtx *hcl.EvalContext) error {
	if isExprDefined(ctx, block.Command, "command") {
		var command string
		if diags := gohcl.DecodeExpression(block.Command, evalCtx, &command); diags.HasErrors() {
			return diags
		}
		if command == "" {
			return fmt.Errorf("command must not be empty")
		}
		tool.Command = command
	}
	if isExprDefined(ctx, block.Args, "args") {
		var args []string
		if diags := gohcl.DecodeExpression(block.Args, evalCtx, &args); diags.HasErrors() {
			return diags
		}
		tool.Args = args
	}
	if isExprDefined(ctx, block.GraphFlag, "graph_flag") {
		var flag string
		if diags := gohcl.DecodeExpression(block.GraphFlag, evalCtx, &flag); diags.HasErrors() {
			return diags
		}
		tool.GraphFlag = flag
	}
	return nil
}

func (l *Loader) environ() []string {
	if l.Environ == nil {
		return os.Environ()
	}
	return l.Environ()
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// Unlike module search paths, an explicitly named toolchain file must exist.
			return nil, fmt.Errorf("error accessing toolchain path %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error scanning %s for toolchain files: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	return allFiles, nil
}
