package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes funnels a YAML config file through the strict JSON
// decoder so unknown keys (a typo'd "tick_intervall", say) are rejected
// the same way for both formats. Files without a .yaml/.yml extension
// pass through untouched.
//
// Returns the JSON bytes plus "json" or "yaml" for log context.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	j, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// stringifyKeys rewrites the decoded YAML tree so every map key is a
// string; json.Marshal refuses map[any]any, which the YAML decoder
// produces for nested sections like event_types.
func stringifyKeys(in any) any {
	switch node := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(node))
		for k, v := range node {
			m[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(node))
		for k, v := range node {
			m[k] = stringifyKeys(v)
		}
		return m
	case []any:
		for i := range node {
			node[i] = stringifyKeys(node[i])
		}
		return node
	default:
		return in
	}
}
