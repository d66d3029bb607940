package app

import (
	"fmt"
	"io"

	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/regio"
)

// openBus returns the register transport for the configured blocks and a
// closer for it.
func openBus(cfg *Config, blocks []*config.Block) (regio.Bus, io.Closer, error) {
	if cfg.Simulate {
		bus := regio.NewMemBus(false)
		for i, b := range blocks {
			if err := bus.MapPattern(b.Address, int(b.Length), uint32(i)<<24); err != nil {
				return nil, nil, fmt.Errorf("failed to simulate block %q: %w", b.Name, err)
			}
		}
		return bus, io.NopCloser(nil), nil
	}

	dm, err := regio.OpenDevMem(cfg.DevMemPath)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range blocks {
		if err := dm.MapWindow(b.Address, b.Length); err != nil {
			dm.Close()
			return nil, nil, fmt.Errorf("failed to map block %q: %w", b.Name, err)
		}
	}
	return dm, dm, nil
}

func openPower(cfg *Config) regio.PowerDomain {
	if cfg.PowerDevice == "" || cfg.Simulate {
		return regio.NopPower{}
	}
	return regio.NewSysfsPower(cfg.PowerDevice)
}
