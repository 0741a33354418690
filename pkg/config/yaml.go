package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON returns harness config bytes as JSON, converting .yaml/.yml files
// first. Both formats then go through the same schema check and strict
// decode in Parse. The second result names the source format for errors.
func toJSON(path string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("harness config %s: %w", path, err)
	}
	if doc == nil {
		// A blank file means "all defaults".
		doc = map[string]any{}
	}

	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("harness config %s: %w", path, err)
	}
	return out, "yaml", nil
}

// stringKeys rewrites YAML maps so every key is a string, which
// encoding/json requires. Non-string keys (e.g. `1: x`) are stringified and
// later rejected by the schema as unknown fields.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return v
	}
}
