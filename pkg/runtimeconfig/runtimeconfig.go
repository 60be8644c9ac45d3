// Package runtimeconfig loads the host-supplied environment/configuration
// surface: a finite set of numeric constants supplied at kernel
// construction.
//
// Grounded on pkg/config, which decodes a versioned Config struct from
// YAML; replaced here with gopkg.in/yaml.v3 directly (dropping viper) since
// this surface is one flat struct with no layered environment-file merging
// to justify a configuration framework.
package runtimeconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"txruntime/engine/decimalx"
	"txruntime/pkg/utils"
)

// RuntimeConfig mirrors the runtime's configuration table exactly.
type RuntimeConfig struct {
	CostUnitPrice        string `yaml:"cost_unit_price"`
	TipPercentage        uint32 `yaml:"tip_percentage"`
	CostUnitLimit        uint64 `yaml:"cost_unit_limit"`
	SystemLoan           uint64 `yaml:"system_loan"`
	MaxCallDepth         int    `yaml:"max_call_depth"`
	MaxSubstateReadBytes uint64 `yaml:"max_substate_read_bytes"`
	MaxSubstateWriteBytes uint64 `yaml:"max_substate_write_bytes"`
	MaxSborDepth         int    `yaml:"max_sbor_depth"`
}

// Default matches the literal values used throughout the runtime's
// end-to-end scenarios (cost_unit_price=1, tip=2%, cost_unit_limit=100,
// system_loan=5) plus reasonable defaults for the fields those scenarios
// don't exercise.
func Default() RuntimeConfig {
	return RuntimeConfig{
		CostUnitPrice:         "1",
		TipPercentage:         2,
		CostUnitLimit:         100,
		SystemLoan:            5,
		MaxCallDepth:          64,
		MaxSubstateReadBytes:  1 << 20,
		MaxSubstateWriteBytes: 1 << 20,
		MaxSborDepth:          64,
	}
}

// Load decodes a RuntimeConfig from a YAML file at path, falling back to
// Default for any field the file omits by starting from Default and
// unmarshalling on top of it.
func Load(path string) (RuntimeConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, utils.Wrap(err, fmt.Sprintf("runtimeconfig: read %s", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, utils.Wrap(err, fmt.Sprintf("runtimeconfig: parse %s", path))
	}
	return cfg, nil
}

// LoadFromEnv loads the config path named by the TXRUNTIME_CONFIG
// environment variable, or returns Default if unset.
func LoadFromEnv() (RuntimeConfig, error) {
	path := utils.EnvOrDefault("TXRUNTIME_CONFIG", "")
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// CostUnitPriceDecimal parses the config's CostUnitPrice string into a
// Decimal, the form the fee reserve actually consumes.
func (c RuntimeConfig) CostUnitPriceDecimal() (decimalx.Decimal, error) {
	return decimalx.Parse(c.CostUnitPrice)
}
