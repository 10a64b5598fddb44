package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/build"
	"github.com/spf13/cobra"

	"github.com/FairgateLabs/bitvmx-protocol-graph/internal/config"
	graphpkg "github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
	kmgrpkg "github.com/FairgateLabs/bitvmx-protocol-graph/pkg/keymanager"
	protocolpkg "github.com/FairgateLabs/bitvmx-protocol-graph/pkg/protocol"
	storagepkg "github.com/FairgateLabs/bitvmx-protocol-graph/pkg/storage"
)

const version = "0.1.0"

var (
	subLoggers = build.NewSubLoggerManager(btclog.NewDefaultHandler(os.Stdout))
	log        = subLoggers.GenSubLogger("PGPH", func() {})

	debugLevel string
)

var rootCmd = &cobra.Command{
	Use:     "protocolgraph",
	Short:   "protocolgraph builds, signs, and persists pre-signed Bitcoin transaction DAGs",
	Version: fmt.Sprintf("v%s", version),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
		log.Infof("protocolgraph version v%s", version)
	},
	DisableAutoGenTag: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(
		&debugLevel, "debuglevel", "info", "logging level: trace, "+
			"debug, info, warn, error, critical",
	)

	rootCmd.AddCommand(
		newBuildCommand(),
		newBuildAndSignCommand(),
		newConnectExternalCommand(),
		newAddP2WPKHOutputCommand(),
		newAddSpeedupOutputCommand(),
		newAddTaprootConnectionCommand(),
		newAddTimelockConnectionCommand(),
		newAddP2WSHConnectionCommand(),
		newAddTaprootKeySpendConnectionCommand(),
		newConnectRoundsCommand(),
		newVisualizeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	subLoggers.RegisterSubLogger("PGPH", log)
	addSubLogger("PROT", protocolpkg.UseLogger)
	addSubLogger("GRPH", graphpkg.UseLogger)
	addSubLogger("KMGR", kmgrpkg.UseLogger)
	addSubLogger("STOR", storagepkg.UseLogger)

	if err := build.ParseAndSetDebugLevels(debugLevel, subLoggers); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid --debuglevel: %v\n", err)
		os.Exit(1)
	}
}

// addSubLogger creates and registers a subsystem's logger in one step.
func addSubLogger(subsystem string, useLoggers ...func(btclog.Logger)) {
	logger := subLoggers.GenSubLogger(subsystem, func() {})
	subLoggers.RegisterSubLogger(subsystem, logger)
	for _, use := range useLoggers {
		use(logger)
	}
}

// rootFlags are the flags every subcommand shares, per spec §6: every
// command takes --protocol-name and --graph-storage-path.
type rootFlags struct {
	ProtocolName      string
	GraphStoragePath  string
	StoragePassphrase string
}

func (f *rootFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ProtocolName, "protocol-name", "", "name of the protocol to load/create (required)")
	cmd.Flags().StringVar(&f.GraphStoragePath, "graph-storage-path", "", "path to the bbolt-backed graph storage file (required)")
	cmd.Flags().StringVar(&f.StoragePassphrase, "storage-passphrase", "", "optional passphrase enabling encryption at rest")
	_ = cmd.MarkFlagRequired("protocol-name")
	_ = cmd.MarkFlagRequired("graph-storage-path")
}

func (f *rootFlags) openBackend() (storagepkg.Backend, func() error, error) {
	bolt, err := storagepkg.OpenBoltBackend(f.GraphStoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open graph storage %q: %w", f.GraphStoragePath, err)
	}
	var backend storagepkg.Backend = bolt
	if f.StoragePassphrase != "" {
		backend = storagepkg.NewEncryptedBackend(bolt, []byte(f.StoragePassphrase))
	}
	return backend, bolt.Close, nil
}

// loadOrCreate loads the named protocol if it already exists in backend,
// or creates an empty one otherwise, so every mutating subcommand works
// against a fresh storage file as well as an existing one.
func loadOrCreate(f *rootFlags, km kmgrpkg.KeyManager) (*protocolpkg.Protocol, storagepkg.Backend, func() error, error) {
	backend, closeFn, err := f.openBackend()
	if err != nil {
		return nil, nil, nil, err
	}

	if _, ok, err := backend.Read(f.ProtocolName); err != nil {
		_ = closeFn()
		return nil, nil, nil, fmt.Errorf("read %q: %w", f.ProtocolName, err)
	} else if ok {
		p, err := protocolpkg.Load(f.ProtocolName, backend, km)
		if err != nil {
			_ = closeFn()
			return nil, nil, nil, err
		}
		return p, backend, closeFn, nil
	}

	return protocolpkg.NewProtocol(f.ProtocolName, km), backend, closeFn, nil
}

// newKeyManager builds the reference LocalKeyManager from the process's
// config/{BITVMX_ENV}.json, for the subcommands that hash or sign
// (build, build-and-sign) rather than just shape the graph.
func newKeyManager() (kmgrpkg.KeyManager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	seed, err := hex.DecodeString(cfg.KeyManager.Seed)
	if err != nil {
		return nil, fmt.Errorf("decode key_manager.seed: %w", err)
	}

	netParams, err := netParamsFor(cfg.Bitcoin.Network)
	if err != nil {
		return nil, err
	}

	return kmgrpkg.NewLocalKeyManager(seed, netParams)
}

func netParamsFor(network string) (*chaincfg.Params, error) {
	switch network {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin.network %q", network)
	}
}
