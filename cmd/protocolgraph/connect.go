package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// --- connect-external ---

type connectExternalCommand struct {
	rootFlags

	ToTransaction   string
	ToInputIndex    int
	ExternalTxid    string
	ExternalVout    uint32
	Value           int64
	ScriptPubKeyHex string

	cmd *cobra.Command
}

func newConnectExternalCommand() *cobra.Command {
	cc := &connectExternalCommand{}
	cc.cmd = &cobra.Command{
		Use:   "connect-external",
		Short: "Anchor an input to a pre-existing on-chain UTXO",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.ToTransaction, "to-transaction", "", "node whose input is being funded (required)")
	cc.cmd.Flags().IntVar(&cc.ToInputIndex, "to-input-index", 0, "index of the input being funded")
	cc.cmd.Flags().StringVar(&cc.ExternalTxid, "external-txid", "", "txid of the already-confirmed funding transaction (required)")
	cc.cmd.Flags().Uint32Var(&cc.ExternalVout, "external-vout", 0, "output index of the funding transaction")
	cc.cmd.Flags().Int64Var(&cc.Value, "value", 0, "value, in satoshis, of the external output")
	cc.cmd.Flags().StringVar(&cc.ScriptPubKeyHex, "script-pubkey", "", "hex-encoded scriptPubKey of the external output (required)")
	_ = cc.cmd.MarkFlagRequired("to-transaction")
	_ = cc.cmd.MarkFlagRequired("external-txid")
	_ = cc.cmd.MarkFlagRequired("script-pubkey")
	return cc.cmd
}

func (c *connectExternalCommand) Execute(_ *cobra.Command, _ []string) error {
	scriptPubKey, err := hex.DecodeString(c.ScriptPubKeyHex)
	if err != nil {
		return fmt.Errorf("decode script-pubkey: %w", err)
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	output := graph.NewExternalUnknownOutput(btcutil.Amount(c.Value), scriptPubKey, c.ExternalTxid, c.ExternalVout)
	connName := fmt.Sprintf("external_%s_%d_to_%s_%d", c.ExternalTxid, c.ExternalVout, c.ToTransaction, c.ToInputIndex)
	if err := p.ConnectExternal(connName, c.ExternalTxid, c.ExternalVout, output, c.ToTransaction, c.ToInputIndex); err != nil {
		return fmt.Errorf("connect-external: %w", err)
	}

	log.Infof("connected external %s:%d to %s input %d", c.ExternalTxid, c.ExternalVout, c.ToTransaction, c.ToInputIndex)
	return p.Save(backend)
}

// --- add-taproot-connection ---

type addTaprootConnectionCommand struct {
	rootFlags

	FromTransaction string
	FromOutputIndex int
	ToTransaction   string
	LeafIndex       int
	Sequence        uint32

	cmd *cobra.Command
}

func newAddTaprootConnectionCommand() *cobra.Command {
	cc := &addTaprootConnectionCommand{}
	cc.cmd = &cobra.Command{
		Use:   "add-taproot-connection",
		Short: "Add an input spending one tapleaf of an existing taproot output, and connect it",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.FromTransaction, "from-transaction", "", "node whose taproot output is being spent (required)")
	cc.cmd.Flags().IntVar(&cc.FromOutputIndex, "from-output-index", 0, "index of the taproot output being spent")
	cc.cmd.Flags().StringVar(&cc.ToTransaction, "to-transaction", "", "node receiving the new input (required)")
	cc.cmd.Flags().IntVar(&cc.LeafIndex, "leaf-index", 0, "tapleaf index the new input spends")
	cc.cmd.Flags().Uint32Var(&cc.Sequence, "sequence", wire.MaxTxInSequenceNum, "nSequence for the new input")
	_ = cc.cmd.MarkFlagRequired("from-transaction")
	_ = cc.cmd.MarkFlagRequired("to-transaction")
	return cc.cmd
}

func (c *addTaprootConnectionCommand) Execute(_ *cobra.Command, _ []string) error {
	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	inIdx, err := p.AddTaprootScriptSpendInput(c.ToTransaction, graph.NewSpendScript(c.LeafIndex), c.Sequence)
	if err != nil {
		return fmt.Errorf("add-taproot-connection: add input: %w", err)
	}

	connName := fmt.Sprintf("%s_%d_to_%s_%d", c.FromTransaction, c.FromOutputIndex, c.ToTransaction, inIdx)
	if err := p.AddTaprootScriptSpendConnection(connName, c.FromTransaction, c.FromOutputIndex, c.ToTransaction, inIdx); err != nil {
		return fmt.Errorf("add-taproot-connection: connect: %w", err)
	}

	log.Infof("connected %s output %d (leaf %d) to %s input %d", c.FromTransaction, c.FromOutputIndex, c.LeafIndex, c.ToTransaction, inIdx)
	return p.Save(backend)
}

// --- add-timelock-connection ---

type addTimelockConnectionCommand struct {
	rootFlags

	FromTransaction string
	ToTransaction   string
	Value           int64
	Blocks          int64
	TimelockKeyHex  string
	Sequence        uint32

	cmd *cobra.Command
}

func newAddTimelockConnectionCommand() *cobra.Command {
	cc := &addTimelockConnectionCommand{}
	cc.cmd = &cobra.Command{
		Use:   "add-timelock-connection",
		Short: "Add a timelocked taproot output on one node and connect it to a spending input on another",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.FromTransaction, "from-transaction", "", "node receiving the new timelocked output (required)")
	cc.cmd.Flags().StringVar(&cc.ToTransaction, "to-transaction", "", "node receiving the spending input (required)")
	cc.cmd.Flags().Int64Var(&cc.Value, "value", 0, "value, in satoshis, of the timelocked output")
	cc.cmd.Flags().Int64Var(&cc.Blocks, "blocks", 0, "relative timelock, in blocks, required before spend (required)")
	cc.cmd.Flags().StringVar(&cc.TimelockKeyHex, "timelock-key", "", "hex-encoded compressed public key authorized to spend after the timelock (required)")
	cc.cmd.Flags().Uint32Var(&cc.Sequence, "sequence", 0, "nSequence encoding the same relative timelock as --blocks")
	_ = cc.cmd.MarkFlagRequired("from-transaction")
	_ = cc.cmd.MarkFlagRequired("to-transaction")
	_ = cc.cmd.MarkFlagRequired("blocks")
	_ = cc.cmd.MarkFlagRequired("timelock-key")
	return cc.cmd
}

func (c *addTimelockConnectionCommand) Execute(_ *cobra.Command, _ []string) error {
	keyBytes, err := hex.DecodeString(c.TimelockKeyHex)
	if err != nil {
		return fmt.Errorf("decode timelock-key: %w", err)
	}
	key, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return fmt.Errorf("parse timelock-key: %w", err)
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	outIdx, err := p.AddTimelockOutput(c.FromTransaction, btcutil.Amount(c.Value), c.Blocks, key)
	if err != nil {
		return fmt.Errorf("add-timelock-connection: add output: %w", err)
	}
	sequence := c.Sequence
	if sequence == 0 {
		sequence = uint32(c.Blocks)
	}
	inIdx, err := p.AddTimelockInput(c.ToTransaction, sequence)
	if err != nil {
		return fmt.Errorf("add-timelock-connection: add input: %w", err)
	}

	connName := fmt.Sprintf("%s_%d_to_%s_%d", c.FromTransaction, outIdx, c.ToTransaction, inIdx)
	if err := p.AddTimelockConnection(connName, c.FromTransaction, outIdx, c.ToTransaction, inIdx); err != nil {
		return fmt.Errorf("add-timelock-connection: connect: %w", err)
	}

	log.Infof("connected timelock %s output %d to %s input %d (%d blocks)", c.FromTransaction, outIdx, c.ToTransaction, inIdx, c.Blocks)
	return p.Save(backend)
}

// --- add-p2wsh-connection ---

type addP2WSHConnectionCommand struct {
	rootFlags

	FromTransaction string
	ToTransaction   string
	Value           int64
	ScriptHex       string
	VerifyingKeyHex string
	Sequence        uint32

	cmd *cobra.Command
}

func newAddP2WSHConnectionCommand() *cobra.Command {
	cc := &addP2WSHConnectionCommand{}
	cc.cmd = &cobra.Command{
		Use:   "add-p2wsh-connection",
		Short: "Add a pay-to-witness-script-hash output on one node and an input spending it on another",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.FromTransaction, "from-transaction", "", "node receiving the new p2wsh output (required)")
	cc.cmd.Flags().StringVar(&cc.ToTransaction, "to-transaction", "", "node receiving the spending input (required)")
	cc.cmd.Flags().Int64Var(&cc.Value, "value", 0, "value, in satoshis, of the p2wsh output")
	cc.cmd.Flags().StringVar(&cc.ScriptHex, "script", "", "hex-encoded witness script (required)")
	cc.cmd.Flags().StringVar(&cc.VerifyingKeyHex, "verifying-key", "", "hex-encoded compressed public key the script ultimately checks a signature under")
	cc.cmd.Flags().Uint32Var(&cc.Sequence, "sequence", wire.MaxTxInSequenceNum, "nSequence for the new input")
	_ = cc.cmd.MarkFlagRequired("from-transaction")
	_ = cc.cmd.MarkFlagRequired("to-transaction")
	_ = cc.cmd.MarkFlagRequired("script")
	return cc.cmd
}

func (c *addP2WSHConnectionCommand) Execute(_ *cobra.Command, _ []string) error {
	scriptBytes, err := hex.DecodeString(c.ScriptHex)
	if err != nil {
		return fmt.Errorf("decode script: %w", err)
	}
	var verifyingKey *btcec.PublicKey
	if c.VerifyingKeyHex != "" {
		verifyingKey, err = parseCompressedPubKey(c.VerifyingKeyHex)
		if err != nil {
			return err
		}
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	script := graph.NewProtocolScript(scriptBytes, verifyingKey)
	outIdx, err := p.AddP2WSHOutput(c.FromTransaction, btcutil.Amount(c.Value), script)
	if err != nil {
		return fmt.Errorf("add-p2wsh-connection: add output: %w", err)
	}
	inIdx, err := p.AddP2WSHInput(c.ToTransaction, c.Sequence)
	if err != nil {
		return fmt.Errorf("add-p2wsh-connection: add input: %w", err)
	}

	connName := fmt.Sprintf("%s_%d_to_%s_%d", c.FromTransaction, outIdx, c.ToTransaction, inIdx)
	if err := p.AddP2WSHConnection(connName, c.FromTransaction, outIdx, c.ToTransaction, inIdx); err != nil {
		return fmt.Errorf("add-p2wsh-connection: connect: %w", err)
	}

	log.Infof("connected p2wsh %s output %d to %s input %d", c.FromTransaction, outIdx, c.ToTransaction, inIdx)
	return p.Save(backend)
}

// --- add-taproot-key-spend-connection ---

type addTaprootKeySpendConnectionCommand struct {
	rootFlags

	FromTransaction   string
	FromOutputIndex   int
	ToTransaction     string
	SignModeAggregate bool
	Sequence          uint32

	cmd *cobra.Command
}

func newAddTaprootKeySpendConnectionCommand() *cobra.Command {
	cc := &addTaprootKeySpendConnectionCommand{}
	cc.cmd = &cobra.Command{
		Use:   "add-taproot-key-spend-connection",
		Short: "Add an input spending a taproot output via the key path, and connect it",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.FromTransaction, "from-transaction", "", "node whose taproot output is being spent (required)")
	cc.cmd.Flags().IntVar(&cc.FromOutputIndex, "from-output-index", 0, "index of the taproot output being spent")
	cc.cmd.Flags().StringVar(&cc.ToTransaction, "to-transaction", "", "node receiving the new input (required)")
	cc.cmd.Flags().BoolVar(&cc.SignModeAggregate, "aggregate", false, "use MuSig2 aggregate signing instead of a single key")
	cc.cmd.Flags().Uint32Var(&cc.Sequence, "sequence", wire.MaxTxInSequenceNum, "nSequence for the new input")
	_ = cc.cmd.MarkFlagRequired("from-transaction")
	_ = cc.cmd.MarkFlagRequired("to-transaction")
	return cc.cmd
}

func (c *addTaprootKeySpendConnectionCommand) Execute(_ *cobra.Command, _ []string) error {
	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	signMode := graph.SignSingle
	if c.SignModeAggregate {
		signMode = graph.SignAggregate
	}

	inIdx, err := p.AddTaprootKeySpendInput(c.ToTransaction, signMode, c.Sequence)
	if err != nil {
		return fmt.Errorf("add-taproot-key-spend-connection: add input: %w", err)
	}

	connName := fmt.Sprintf("%s_%d_to_%s_%d", c.FromTransaction, c.FromOutputIndex, c.ToTransaction, inIdx)
	if err := p.AddTaprootKeySpendConnection(connName, c.FromTransaction, c.FromOutputIndex, c.ToTransaction, inIdx); err != nil {
		return fmt.Errorf("add-taproot-key-spend-connection: connect: %w", err)
	}

	log.Infof("connected %s output %d (key path) to %s input %d", c.FromTransaction, c.FromOutputIndex, c.ToTransaction, inIdx)
	return p.Save(backend)
}

// --- connect-rounds ---

type connectRoundsCommand struct {
	rootFlags

	FromPrefix string
	ToPrefix   string
	Rounds     uint32
	KeyHex     string

	cmd *cobra.Command
}

func newConnectRoundsCommand() *cobra.Command {
	cc := &connectRoundsCommand{}
	cc.cmd = &cobra.Command{
		Use:   "connect-rounds",
		Short: "Explode a two-name ping-pong template into 2n concrete round transactions",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.FromPrefix, "from-prefix", "", "name prefix for the challenger side of each round (required)")
	cc.cmd.Flags().StringVar(&cc.ToPrefix, "to-prefix", "", "name prefix for the responder side of each round (required)")
	cc.cmd.Flags().Uint32Var(&cc.Rounds, "rounds", 0, "number of rounds; explodes into 2n transactions (required)")
	cc.cmd.Flags().StringVar(&cc.KeyHex, "key", "", "hex-encoded compressed public key every round's single leaf checks a signature under (required)")
	_ = cc.cmd.MarkFlagRequired("from-prefix")
	_ = cc.cmd.MarkFlagRequired("to-prefix")
	_ = cc.cmd.MarkFlagRequired("rounds")
	_ = cc.cmd.MarkFlagRequired("key")
	return cc.cmd
}

// Execute wires both directions of every round to a single CheckSignature
// leaf under --key; arbitrary per-round scripts (e.g. the Winternitz
// linked-message challenge/response pair §4.1 names, which differ between
// the direct and reverse connections) are for Go callers of
// Protocol.ConnectRounds directly, which takes per-direction leafBuilder
// functions the CLI's flag surface cannot express.
func (c *connectRoundsCommand) Execute(_ *cobra.Command, _ []string) error {
	keyBytes, err := hex.DecodeString(c.KeyHex)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	key, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	leafBuilder := func(round uint32) ([]graph.Leaf, error) {
		script, err := graph.CheckSignature(key)
		if err != nil {
			return nil, err
		}
		return []graph.Leaf{{Script: script, SignMode: graph.SignSingle}}, nil
	}

	first, last, err := p.ConnectRounds(c.FromPrefix, c.ToPrefix, c.Rounds, leafBuilder, leafBuilder)
	if err != nil {
		return fmt.Errorf("connect-rounds: %w", err)
	}

	log.Infof("connected %d rounds from %s to %s", c.Rounds, first, last)
	return p.Save(backend)
}
