package channeldb

import "github.com/btcsuite/btclog"

// log is the package-level logger used throughout channeldb. It is
// disabled by default; the daemon entrypoint wires in a real backend via
// UseLogger.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
