package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/dpudbg/internal/config"
)

// Validate checks that every configured notifier has a registered module.
// Module specific settings are checked by the module's factory.
func (r *Registry) Validate(defs []*config.Notifier) error {
	var errs []error
	for i, d := range defs {
		if _, ok := r.factories[d.Kind]; !ok {
			errs = append(errs, fmt.Errorf("notifier #%d: unknown kind %q (known: %s)", i, d.Kind, strings.Join(r.Kinds(), ", ")))
		}
	}
	return errors.Join(errs...)
}
