package config

import (
	"fmt"

	"github.com/adverant/nexus/extraction-auditor/internal/hierarchy"
	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/layout"
	"github.com/adverant/nexus/extraction-auditor/internal/ocrbench"
	"github.com/adverant/nexus/extraction-auditor/internal/quality"
	"github.com/adverant/nexus/extraction-auditor/internal/scanned"
	"github.com/adverant/nexus/extraction-auditor/internal/structure"
	"github.com/spf13/viper"
)

// Thresholds groups the tunable constants of every analysis component.
// None of them are correctness constraints.
type Thresholds struct {
	Structure structure.Config `mapstructure:"structure" json:"structure"`
	Layout    layout.Config    `mapstructure:"layout" json:"layout"`
	Hierarchy hierarchy.Config `mapstructure:"hierarchy" json:"hierarchy"`
	Quality   quality.Config   `mapstructure:"quality" json:"quality"`
	Images    images.Config    `mapstructure:"images" json:"images"`
	Scanned   scanned.Config   `mapstructure:"scanned" json:"scanned"`
	Benchmark ocrbench.Config  `mapstructure:"benchmark" json:"benchmark"`
}

// DefaultThresholds returns every component's stock configuration
func DefaultThresholds() Thresholds {
	return Thresholds{
		Structure: structure.DefaultConfig(),
		Layout:    layout.DefaultConfig(),
		Hierarchy: hierarchy.DefaultConfig(),
		Quality:   quality.DefaultConfig(),
		Images:    images.DefaultConfig(),
		Scanned:   scanned.DefaultConfig(),
		Benchmark: ocrbench.DefaultConfig(),
	}
}

// LoadThresholds reads overrides from a YAML file on top of the defaults.
// An empty path returns the defaults. Keys missing from the file keep their
// default values, e.g.
//
//	quality:
//	  garbage_penalty: 4
//	layout:
//	  page_timeout: 45s
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if path == "" {
		return t, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return t, fmt.Errorf("error reading thresholds file %s: %w", path, err)
	}

	if err := v.Unmarshal(&t); err != nil {
		return t, fmt.Errorf("unable to decode thresholds: %w", err)
	}

	return t, nil
}
