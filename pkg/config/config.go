// Package config holds the compiler configuration.
package config

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// Config controls how schemas are compiled and how compiled models validate.
type Config struct {
	// CollectErrors makes validation evaluate every validator and raise one
	// aggregate error instead of failing on the first violation.
	CollectErrors bool `json:"collectErrors"`
	// Immutable compiles models without mutators; every property is read-only.
	Immutable bool `json:"immutable"`
	// ImplicitNull lets optional properties accept null.
	ImplicitNull bool `json:"implicitNull"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		CollectErrors: true,
		ImplicitNull:  true,
	}
}

// FromFile creates a Config from a YAML or JSON document. Keys missing from
// the document keep their Default values.
//
// Parameters:
//
//	data []byte: The YAML or JSON document.
//
// Returns:
//
//	Config: The decoded configuration.
//	error: An error if the document cannot be decoded.
func FromFile(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
