package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname   = "data"
	defaultLogDirname    = "logs"
	defaultLogFilename   = "hostedchanneld.log"
	defaultRPCSockName   = "hostedchanneld.sock"
	defaultConfigFilename = "hostedchanneld.conf"
)

var (
	defaultHomeDir = filepath.Join(os.Getenv("HOME"), ".hostedchanneld")
)

// config houses every knob the daemon reads at startup. Grounded on the
// jessevdk/go-flags struct-tag idiom used throughout the retrieved pack
// (long names, inline defaults, group tags for nested structs) rather than
// lnd's much larger config.go, which this module has no sub-RPC servers,
// chain backends, or autopilot to carry a section for.
type config struct {
	HomeDir string `long:"homedir" description:"The base directory used to store the daemon's data, logs, and rpc socket"`

	DataDir string `long:"datadir" description:"The directory to store the channel database in"`
	LogDir  string `long:"logdir" description:"Directory to log output"`

	RPCSock string `long:"rpcsock" description:"Unix socket path the control API listens on"`

	PeerListenAddrs []string `long:"listen" description:"Add an interface/port/socket to listen for peer connections"`

	ChainHash string `long:"chainhash" description:"Hex-encoded 32-byte chain hash this instance's hosted channels are scoped to"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems"`
}

// defaultConfig returns a config with every path and level defaulted under
// HomeDir, mirroring the teacher's defaultHomeDir/defaultDataDir layering.
func defaultConfig() *config {
	return &config{
		HomeDir:    defaultHomeDir,
		DataDir:    filepath.Join(defaultHomeDir, defaultDataDirname),
		LogDir:     filepath.Join(defaultHomeDir, defaultLogDirname),
		RPCSock:    filepath.Join(defaultHomeDir, defaultRPCSockName),
		DebugLevel: "info",
	}
}

// loadConfig parses the command line on top of defaultConfig, then
// re-derives any path still at its default value from a freshly-set HomeDir so
// that `-homedir` alone relocates the whole daemon's state.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.HomeDir != defaultHomeDir {
		if cfg.DataDir == defaultConfig().DataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultConfig().LogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		}
		if cfg.RPCSock == defaultConfig().RPCSock {
			cfg.RPCSock = filepath.Join(cfg.HomeDir, defaultRPCSockName)
		}
	}

	if len(cfg.PeerListenAddrs) == 0 {
		cfg.PeerListenAddrs = []string{":9969"}
	}

	if cfg.ChainHash == "" {
		return nil, fmt.Errorf("chainhash is required")
	}

	for _, dir := range []string{cfg.HomeDir, cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("unable to create %v: %w", dir, err)
		}
	}

	return cfg, nil
}
