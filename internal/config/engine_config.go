package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/types"
	"github.com/truptisatsangi/robo-defi-advisor/internal/validation"
)

// EngineConfig holds the decision rules that operators may tune without a rebuild
type EngineConfig struct {
	// Protocol allow-list and reputation tiers
	Registry types.ProtocolRegistry `json:"registry"`

	// TVL floor applied when the user asks for the safest pool
	SafestMinTVL float64 `json:"safest_min_tvl"`
}

// DefaultEngineConfig returns the built-in rules
func DefaultEngineConfig() *EngineConfig {
	defaults := validation.DefaultFilterOptions()
	return &EngineConfig{
		Registry:     defaults.Registry,
		SafestMinTVL: defaults.SafestMinTVL,
	}
}

// LoadEngineConfig loads the engine configuration from a JSON file. Keys the
// file omits keep their defaults. An empty path means defaults only. The
// TRUSTED_PROTOCOLS and SAFEST_MIN_TVL environment variables override both.
func LoadEngineConfig(configPath string) (*EngineConfig, error) {
	config := DefaultEngineConfig()

	if configPath != "" {
		fileData, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine config: %w", err)
		}
		if err := json.Unmarshal(fileData, config); err != nil {
			return nil, fmt.Errorf("failed to parse engine config: %w", err)
		}
		logrus.Infof("Loaded engine configuration from %s", configPath)
	}

	applyEngineEnvOverrides(config)

	if len(config.Registry.Trusted) == 0 {
		return nil, fmt.Errorf("engine config: trusted protocol list is empty")
	}
	if config.SafestMinTVL < 0 {
		return nil, fmt.Errorf("engine config: negative safest_min_tvl %f", config.SafestMinTVL)
	}
	return config, nil
}

func applyEngineEnvOverrides(config *EngineConfig) {
	if trusted := GetEnvAsList("TRUSTED_PROTOCOLS"); len(trusted) > 0 {
		config.Registry.Trusted = trusted
	}
	config.SafestMinTVL = GetEnvAsFloat("SAFEST_MIN_TVL", config.SafestMinTVL)
}

// FilterOptions converts the config into candidate filter options
func (c *EngineConfig) FilterOptions() validation.FilterOptions {
	return validation.FilterOptions{
		Registry:     c.Registry,
		SafestMinTVL: c.SafestMinTVL,
	}
}
