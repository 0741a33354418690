package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/afero"
)

const schemaURL = "volttron-testing/harness.schema.json"

// schemaJSON describes the accepted shape of a harness config document.
// Semantic checks (duration syntax, timezone names) happen in Resolve.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "poll_interval":      {"type": "string"},
    "verify_timeout":     {"type": "string"},
    "join_timeout":       {"type": "string"},
    "failure_warn_every": {"type": "string"},
    "timezone":           {"type": "string"},
    "preview_runs":       {"type": "integer", "minimum": -1},
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level":   {"type": "string", "enum": ["", "trace", "debug", "info", "warn", "warning", "error"]},
        "console": {"type": "boolean"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString(schemaURL, schemaJSON)
	})
	return schema, schemaErr
}

// Load reads a JSON or YAML (by extension) config file from fsys.
// Omitted fields keep their Default() values.
func Load(fsys afero.Fs, path string) (Config, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, err
	}
	return Parse(path, b)
}

// Parse decodes raw config bytes. path is only used to pick the format.
func Parse(path string, data []byte) (Config, error) {
	jb, format, err := toJSON(path, data)
	if err != nil {
		return Config{}, err
	}

	var doc any
	if err := json.Unmarshal(jb, &doc); err != nil {
		return Config{}, fmt.Errorf("%s config: %w", format, err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("invalid config: trailing data")
		}
		return Config{}, err
	}
	if _, err := cfg.Resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
