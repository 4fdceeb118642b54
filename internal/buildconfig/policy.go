// Package buildconfig loads the policy configuration and assembles the build
// configuration consumed by the rewrite engine.
package buildconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyKey is the field of the policy configuration holding the default
// rewriting policy.
const PolicyKey = "policy"

// ErrMissingPolicy is returned when the policy configuration has no policy field.
var ErrMissingPolicy = errors.New(`policy configuration has no "policy" field`)

// PolicyConfig is a parsed policy configuration file. Policy is opaque to the
// pipeline; Extra holds every other top-level field for pass-through.
type PolicyConfig struct {
	Policy any
	Extra  map[string]any
}

// LoadPolicy reads a policy configuration. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func LoadPolicy(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy configuration: %w", err)
	}

	var fields map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("failed to parse policy configuration %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("failed to parse policy configuration %s: %w", path, err)
		}
		if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
			return nil, fmt.Errorf("failed to parse policy configuration %s: unexpected content after the top-level object", path)
		}
	}

	policy, ok := fields[PolicyKey]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingPolicy)
	}
	delete(fields, PolicyKey)

	return &PolicyConfig{Policy: policy, Extra: fields}, nil
}
