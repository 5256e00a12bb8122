package ruleflow

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadJSON parses JSON configuration bytes into a RuleEngineConfig. It
// unwraps a top-level {"ruleEngineConfig": <config>} wrapper when present,
// and — via mapstructure's weak typing — accepts a single scalar anywhere an
// array is expected, treating it as a one-element array.
func LoadJSON(data []byte) (RuleEngineConfig, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return RuleEngineConfig{}, &ConfigurationError{Source: "json", Cause: err}
	}
	return decodeConfig("json", raw)
}

// LoadYAML parses YAML configuration bytes the same way LoadJSON parses JSON.
func LoadYAML(data []byte) (RuleEngineConfig, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RuleEngineConfig{}, &ConfigurationError{Source: "yaml", Cause: err}
	}
	return decodeConfig("yaml", raw)
}

// LoadJSONFile reads path and delegates to LoadJSON.
func LoadJSONFile(path string) (RuleEngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleEngineConfig{}, &ConfigurationError{Source: "json", Cause: err}
	}
	return LoadJSON(data)
}

// LoadYAMLFile reads path and delegates to LoadYAML.
func LoadYAMLFile(path string) (RuleEngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleEngineConfig{}, &ConfigurationError{Source: "yaml", Cause: err}
	}
	return LoadYAML(data)
}

func decodeConfig(source string, raw any) (RuleEngineConfig, error) {
	root := unwrapEnvelope(raw)

	var config RuleEngineConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return RuleEngineConfig{}, &ConfigurationError{Source: source, Cause: err}
	}
	if err := decoder.Decode(root); err != nil {
		return RuleEngineConfig{}, &ConfigurationError{Source: source, Cause: err}
	}
	return config, nil
}

// unwrapEnvelope strips a top-level {"ruleEngineConfig": <config>} wrapper
// when present, matching the key case-insensitively.
func unwrapEnvelope(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw
	}
	for k, v := range m {
		if strings.EqualFold(k, "ruleEngineConfig") {
			return v
		}
	}
	return raw
}
