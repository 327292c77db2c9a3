// Package config provides the embedded default configuration for hermes.
package config

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration in YAML
// format. It is used when no configuration file exists and is written out
// by "hermes config create".
//
//go:embed config.default.yaml
var DefaultConfigYAML []byte
