package internal

import (
	"github.com/ragstack/ragserve/internal/config"
)

// LoadConfig reads the YAML config from an explicit path, or the
// default location when path is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}
