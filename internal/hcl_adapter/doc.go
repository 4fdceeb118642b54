// Package hcl_adapter implements config.Loader for HCL toolchain files.
//
// A toolchain file overrides how the external engines are launched:
//
//	tool "crawl" {
//	  command = "node"
//	  args    = ["pagegraph-crawl/built/run.js"]
//	}
//
//	tool "query" {
//	  command    = env.PAGEGRAPH_CLI
//	  graph_flag = "-f"
//	}
//
// Omitted tools and attributes keep their defaults.
package hcl_adapter
