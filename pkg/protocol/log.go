package protocol

import (
	"io"

	"github.com/btcsuite/btclog/v2"
)

// log is the package-wide logger. It is disabled (writes to io.Discard)
// until the host binary wires a real backend through UseLogger, the same
// pattern lnd-family packages use to let a single binary own logging
// configuration.
var log btclog.Logger = newDisabledLogger("PROT")

func newDisabledLogger(subsystem string) btclog.Logger {
	logger := btclog.NewSLogger(btclog.NewDefaultHandler(io.Discard))
	return logger.SubSystem(subsystem)
}

// UseLogger installs a logger to be used by this package and its
// sub-components.
func UseLogger(logger btclog.Logger) {
	log = logger
}
