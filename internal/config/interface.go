package config

import "context"

// Loader is the interface for a format-specific toolchain loader.
type Loader interface {
	// Load reads toolchain overrides from the given paths and merges them
	// over DefaultToolchain. Loading with no paths yields the defaults.
	Load(ctx context.Context, paths ...string) (*Toolchain, error)
}
