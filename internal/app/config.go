package app

import (
	"errors"
	"strings"
)

// Config holds everything an App needs that does not come from the catalog
// files.
type Config struct {
	CatalogPaths []string // hcl files or directories

	Listen    string // control server address, empty to disable
	LogFormat string
	LogLevel  string

	// Overrides of the engine section of the catalog. Zero keeps the file value.
	Sinks      []string
	QueueDepth int

	// Dump lists targets captured once at startup (origin "cli").
	Dump []string

	Simulate    bool   // serve reads from an in-memory bus instead of DevMemPath
	DevMemPath  string // physical memory device
	PowerDevice string // sysfs device directory whose runtime PM gates reads
	StatePath   string // text file captured as driver state
}

// NewConfig validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.CatalogPaths) == 0 {
		return nil, errors.New("at least one catalog path is required")
	}
	for _, p := range cfg.CatalogPaths {
		if strings.TrimSpace(p) == "" {
			return nil, errors.New("catalog paths cannot be empty")
		}
	}
	if !cfg.Simulate && cfg.DevMemPath == "" {
		return nil, errors.New("a memory device is required unless simulating")
	}
	if cfg.Listen == "" && len(cfg.Dump) == 0 {
		return nil, errors.New("nothing to do: set a listen address or targets to dump")
	}
	return &cfg, nil
}
