// Package config defines the format-agnostic description of the external
// toolchain the pipeline drives, along with the Loader interface for reading
// it from a configuration source.
//
// The Toolchain model is the single source of truth for how the crawl,
// query and rewrite engines are launched. Concrete loaders, such as the HCL
// one, live in separate packages.
package config
