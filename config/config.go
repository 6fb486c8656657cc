// Package config resolves EnvironmentOptions, optionally overridden by a
// JSON document validated against an embedded schema, mirroring the
// gojsonschema-validate-then-merge discipline the pack uses for plugin
// manifests (see filegrind's schema_validation.go) applied here to
// environment configuration instead.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// environmentOptionsSchema constrains the shape of a JSON override: only
// recognized fields, correct types. Unknown top-level fields are rejected so
// a typo in a config file fails fast instead of silently no-opping.
const environmentOptionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "root": {"type": "string"},
    "mode": {"type": "string", "enum": ["development", "production"]},
    "recoverable": {"type": "boolean"},
    "resolve": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "extensions": {"type": "array", "items": {"type": "string"}},
        "mainFields": {"type": "array", "items": {"type": "string"}}
      }
    },
    "dev": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "warmup": {"type": "array", "items": {"type": "string"}}
      }
    },
    "optimizeDeps": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "noDiscovery": {"type": "boolean"},
        "include": {"type": "array", "items": {"type": "string"}},
        "discoveryEnabled": {"type": "boolean"}
      }
    }
  }
}`

// ResolveOptions is the resolve-specific slice of EnvironmentOptions.
type ResolveOptions struct {
	Extensions []string `json:"extensions,omitempty"`
	MainFields []string `json:"mainFields,omitempty"`
}

// DevOptions is the dev-server-specific slice of EnvironmentOptions.
type DevOptions struct {
	Warmup []string `json:"warmup,omitempty"`
}

// OptimizeDepsOptions mirrors the fields the optimizer selection policy
// consults (spec §4.6's table).
type OptimizeDepsOptions struct {
	NoDiscovery      bool     `json:"noDiscovery,omitempty"`
	Include          []string `json:"include,omitempty"`
	DiscoveryEnabled bool     `json:"discoveryEnabled,omitempty"`
}

// EnvironmentOptions is the resolved configuration bundle an Environment is
// constructed with.
type EnvironmentOptions struct {
	Root         string              `json:"root,omitempty"`
	Mode         string              `json:"mode,omitempty"`
	Recoverable  bool                `json:"recoverable,omitempty"`
	Resolve      ResolveOptions      `json:"resolve,omitempty"`
	Dev          DevOptions          `json:"dev,omitempty"`
	OptimizeDeps OptimizeDepsOptions `json:"optimizeDeps,omitempty"`
}

// Default returns the zero-value-safe baseline options.
func Default() EnvironmentOptions {
	return EnvironmentOptions{Root: ".", Mode: "development"}
}

// ValidationError reports one or more schema violations in an override
// document.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("environment options schema validation failed:\n%s", strings.Join(e.Details, "\n"))
}

// ApplyOverride validates overrideJSON against the embedded schema and, if
// valid, merges it onto base (fields present in the override replace the
// corresponding base field; absent fields are left untouched).
func ApplyOverride(base EnvironmentOptions, overrideJSON []byte) (EnvironmentOptions, error) {
	if len(overrideJSON) == 0 {
		return base, nil
	}

	schemaLoader := gojsonschema.NewStringLoader(environmentOptionsSchema)
	docLoader := gojsonschema.NewBytesLoader(overrideJSON)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return base, fmt.Errorf("compiling environment options schema: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return base, &ValidationError{Details: details}
	}

	merged := base
	var override map[string]json.RawMessage
	if err := json.Unmarshal(overrideJSON, &override); err != nil {
		return base, fmt.Errorf("decoding environment options override: %w", err)
	}

	if raw, ok := override["root"]; ok {
		_ = json.Unmarshal(raw, &merged.Root)
	}
	if raw, ok := override["mode"]; ok {
		_ = json.Unmarshal(raw, &merged.Mode)
	}
	if raw, ok := override["recoverable"]; ok {
		_ = json.Unmarshal(raw, &merged.Recoverable)
	}
	if raw, ok := override["resolve"]; ok {
		_ = json.Unmarshal(raw, &merged.Resolve)
	}
	if raw, ok := override["dev"]; ok {
		_ = json.Unmarshal(raw, &merged.Dev)
	}
	if raw, ok := override["optimizeDeps"]; ok {
		_ = json.Unmarshal(raw, &merged.OptimizeDeps)
	}

	return merged, nil
}
