package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseProtocolYAML parses a ProtocolFile from YAML bytes and validates it.
// This is used for APIs where the protocol is provided as payload (not via filesystem).
func ParseProtocolYAML(data []byte) (*ProtocolFile, error) {
	var pf ProtocolFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse protocol yaml: %w", err)
	}
	if pf.LogLevel == "" {
		pf.LogLevel = "info"
	}

	if err := validateProtocol(&pf); err != nil {
		return nil, fmt.Errorf("invalid protocol: %w", err)
	}

	return &pf, nil
}

// ParseProtocolYAMLString parses a ProtocolFile from a YAML string and validates it.
func ParseProtocolYAMLString(yamlText string) (*ProtocolFile, error) {
	return ParseProtocolYAML([]byte(yamlText))
}
