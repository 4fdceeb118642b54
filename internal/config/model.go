package config

import "fmt"

// Tool names accepted in toolchain configuration.
const (
	ToolCrawl   = "crawl"
	ToolQuery   = "query"
	ToolRewrite = "rewrite"
)

// Tool describes how to launch one external engine.
type Tool struct {
	Name    string
	Command string
	// Args are prepended to every invocation, e.g. the script path when
	// Command is an interpreter.
	Args []string
	// GraphFlag is the flag that scopes a query to a graph file. When empty
	// the graph file is passed positionally. Only meaningful for the query tool.
	GraphFlag string
}

// Argv returns the executable and the full argument list for an invocation
// with the given tool-specific arguments.
func (t Tool) Argv(extra ...string) (string, []string) {
	args := make([]string, 0, len(t.Args)+len(extra))
	args = append(args, t.Args...)
	args = append(args, extra...)
	return t.Command, args
}

// Toolchain is the set of external engines used by one pipeline run.
type Toolchain struct {
	Crawl   Tool
	Query   Tool
	Rewrite Tool
}

// DefaultToolchain returns the toolchain used when no configuration file is given.
func DefaultToolchain() *Toolchain {
	return &Toolchain{
		Crawl:   Tool{Name: ToolCrawl, Command: "pagegraph-crawl"},
		Query:   Tool{Name: ToolQuery, Command: "pagegraph-query", GraphFlag: "-f"},
		Rewrite: Tool{Name: ToolRewrite, Command: "sugarcoat"},
	}
}

// Lookup returns a pointer to the named tool so loaders can apply overrides.
func (tc *Toolchain) Lookup(name string) (*Tool, error) {
	switch name {
	case ToolCrawl:
		return &tc.Crawl, nil
	case ToolQuery:
		return &tc.Query, nil
	case ToolRewrite:
		return &tc.Rewrite, nil
	default:
		return nil, fmt.Errorf("unknown tool %q: must be one of %q, %q or %q", name, ToolCrawl, ToolQuery, ToolRewrite)
	}
}
