package storage

import (
	"io"

	"github.com/btcsuite/btclog/v2"
)

var log btclog.Logger = newDisabledLogger("STOR")

func newDisabledLogger(subsystem string) btclog.Logger {
	logger := btclog.NewSLogger(btclog.NewDefaultHandler(io.Discard))
	return logger.SubSystem(subsystem)
}

// UseLogger installs a logger to be used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
