package regio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SysfsPower drives a device's runtime power management through its
// power/control attribute: "on" holds the device powered, "auto" lets the
// kernel suspend it again.
type SysfsPower struct {
	mu      sync.Mutex
	control string
	refs    int
}

// NewSysfsPower returns a domain for the device directory devPath
// (for example /sys/devices/platform/soc/ae00000.mdss).
func NewSysfsPower(devPath string) *SysfsPower {
	return &SysfsPower{control: filepath.Join(devPath, "power", "control")}
}

// Enable implements PowerDomain. Nested enables are reference counted.
func (p *SysfsPower) Enable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPowerEnable, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 {
		if err := os.WriteFile(p.control, []byte("on"), 0); err != nil {
			return fmt.Errorf("%w: %v", ErrPowerEnable, err)
		}
	}
	p.refs++
	return nil
}

// Disable implements PowerDomain.
func (p *SysfsPower) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 {
		return
	}
	p.refs--
	if p.refs == 0 {
		_ = os.WriteFile(p.control, []byte("auto"), 0)
	}
}
