package hcl_adapter

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// isExprDefined checks if an HCL expression was actually present in the source
// code. The HCL decoder populates omitted optional attributes with non-nil,
// zero-width expression objects, so a simple nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	logger := ctxlog.FromContext(ctx)

	if expr == nil {
		logger.Debug("Expression is nil, considering it undefined.", "attribute", attrName)
		return false
	}

	// A real attribute occupies bytes in the file, while a placeholder for an
	// omitted optional attribute has a zero-width range.
	exprRange := expr.Range()
	isDefined := exprRange.End.Byte > exprRange.Start.Byte

	logger.Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", exprRange.String(),
		"is_defined", isDefined,
	)

	return isDefined
}

// envEvalContext exposes the process environment to toolchain expressions as
// the `env` map, e.g. `command = env.PAGEGRAPH_CLI`.
func envEvalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}

	env := cty.MapValEmpty(cty.String)
	if len(vars) > 0 {
		env = cty.MapVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}
