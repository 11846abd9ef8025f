package main

import (
	"github.com/btcsuite/btclog"

	"github.com/lightningnetwork/hosted-channeld/channeldb"
	"github.com/lightningnetwork/hosted-channeld/contractcourt"
	"github.com/lightningnetwork/hosted-channeld/discovery"
	"github.com/lightningnetwork/hosted-channeld/htlcswitch"
	"github.com/lightningnetwork/hosted-channeld/lnwallet"
)

// Subsystem loggers, one per major component, matching the logging
// conventions of every package loggers is wired to below.
var (
	peerLog = btclog.Disabled
	srvrLog = btclog.Disabled
	rpcsLog = btclog.Disabled
)

// initLogging points every subsystem's package-level logger, including
// this binary's own, at backend.
func initLogging(backend btclog.Logger) {
	peerLog = backend
	srvrLog = backend
	rpcsLog = backend

	channeldb.UseLogger(backend)
	htlcswitch.UseLogger(backend)
	contractcourt.UseLogger(backend)
	discovery.UseLogger(backend)
	lnwallet.UseLogger(backend)
}
