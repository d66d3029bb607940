package app

import (
	"github.com/specialistvlad/dpudbg/internal/registry"
	"github.com/specialistvlad/dpudbg/modules/print"
	"github.com/specialistvlad/dpudbg/modules/socketio"
	"github.com/specialistvlad/dpudbg/modules/upload"
)

// coreModules is the definitive list of notifier modules compiled into the
// dpudbg binary.
var coreModules = []registry.Module{
	&print.Module{},
	&socketio.Module{},
	&upload.Module{},
}
