package protocol

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/keymanager"
)

// defaultNetParams governs address encoding for the P2WPKH/P2WSH helpers
// below; only the script bytes ever reach a Transaction, so this choice
// never affects serialized output, only the throwaway address.Address
// value used to derive it.
var defaultNetParams = chaincfg.MainNetParams

// chainhashSHA256 is the plain (non-tagged) SHA-256 a P2WSH address needs
// over the redeemed witness script.
func chainhashSHA256(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Protocol is the stateful facade building one DAG of pre-signed
// transactions: every Add*/Connect* verb mutates Graph, and Build/
// BuildAndSign drive the two-pass pipeline over it. It is mutated only by
// its owning goroutine, per §5's concurrency model — no internal locks.
type Protocol struct {
	Name  string
	Graph *graph.TransactionGraph

	km keymanager.KeyManager

	// wire holds the finalized wire.MsgTx for every node, populated by
	// Build/BuildAndSign's pass 1 and consumed by the witness assembler
	// and persistence layer.
	wire map[string]*wire.MsgTx
}

// NewProtocol creates an empty protocol named name, signing through km.
func NewProtocol(name string, km keymanager.KeyManager) *Protocol {
	return &Protocol{
		Name:  name,
		Graph: graph.NewTransactionGraph(),
		km:    km,
	}
}

// AddTransaction registers a new, empty node.
func (p *Protocol) AddTransaction(name string) error {
	if err := graph.CheckEmptyTransactionName(name); err != nil {
		return err
	}
	return p.Graph.AddTransaction(name)
}

// --- Taproot key-spend outputs/inputs/connections ---

// AddTaprootKeySpendOutput adds a key-path-only taproot output: its
// internal key is the sole spend condition, tweaked per BIP-86 (no script
// tree committed) so the witness program and the key signTaprootInput
// signs under agree.
func (p *Protocol) AddTaprootKeySpendOutput(tx string, value btcutil.Amount, internalKey *btcec.PublicKey) (int, error) {
	outputKey, _, err := graph.ComputeTaprootKeyNoScript(internalKey)
	if err != nil {
		return 0, fmt.Errorf("taproot key-spend tweak: %w", err)
	}
	scriptPubKey, err := txscript.PayToTaprootScript(outputKey)
	if err != nil {
		return 0, fmt.Errorf("taproot key-spend script pubkey: %w", err)
	}
	out := graph.NewTaprootKeyOutput(value, internalKey, nil)
	out.ScriptPubKey = scriptPubKey
	return p.Graph.AddTransactionOutput(tx, out)
}

// AddTaprootKeySpendInput adds an input spendable only via its prevout's
// taproot key path.
func (p *Protocol) AddTaprootKeySpendInput(tx string, signMode graph.SignMode, sequence uint32) (int, error) {
	in := graph.InputType{
		Sighash:   graph.SighashTaproot,
		SpendMode: graph.NewSpendKeyOnly(signMode),
		Sequence:  sequence,
	}
	return p.Graph.AddTransactionInput(tx, in)
}

// AddTaprootKeySpendConnection validates names and delegates to the
// graph, then verifies the resulting input/output pairing is
// type-compatible.
func (p *Protocol) AddTaprootKeySpendConnection(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connect(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

// --- Taproot script-spend outputs/inputs/connections ---

// AddTaprootScriptSpendOutput adds a taproot output whose key path is
// disabled (internal key is the deterministic NUMS point) and whose only
// spend paths are the given tapleaves.
func (p *Protocol) AddTaprootScriptSpendOutput(tx string, value btcutil.Amount, leaves []graph.Leaf) (int, error) {
	internalKey, err := graph.UnspendableKey()
	if err != nil {
		return 0, err
	}
	return p.addTaprootOutput(tx, value, internalKey, leaves)
}

// AddTaprootScriptSpendOutputWithInternalKey is the same as
// AddTaprootScriptSpendOutput but with a caller-supplied internal key,
// needed when the key path must remain meaningfully spendable (e.g. a
// cooperative-close path alongside the script paths).
func (p *Protocol) AddTaprootScriptSpendOutputWithInternalKey(tx string, value btcutil.Amount, internalKey *btcec.PublicKey, leaves []graph.Leaf) (int, error) {
	return p.addTaprootOutput(tx, value, internalKey, leaves)
}

func (p *Protocol) addTaprootOutput(tx string, value btcutil.Amount, internalKey *btcec.PublicKey, leaves []graph.Leaf) (int, error) {
	scripts := make([]*graph.ProtocolScript, len(leaves))
	for i, l := range leaves {
		scripts[i] = l.Script
	}
	if err := graph.CheckEmptyScripts(scripts); err != nil {
		return 0, err
	}

	tree, err := graph.BuildTapTree(internalKey, scripts)
	if err != nil {
		return 0, err
	}

	out := graph.NewTaprootOutput(value, internalKey, leaves)
	out.ScriptPubKey, err = txscript.PayToTaprootScript(tree.OutputKey)
	if err != nil {
		return 0, fmt.Errorf("taproot script-spend script pubkey: %w", err)
	}
	out.SpendInfo = tree
	return p.Graph.AddTransactionOutput(tx, out)
}

// AddTaprootScriptSpendInput adds an input spendable via one or more of
// its prevout's tapleaves (and possibly the key path too), selected by
// spendMode.
func (p *Protocol) AddTaprootScriptSpendInput(tx string, spendMode graph.SpendMode, sequence uint32) (int, error) {
	in := graph.InputType{
		Sighash:   graph.SighashTaproot,
		SpendMode: spendMode,
		Sequence:  sequence,
	}
	return p.Graph.AddTransactionInput(tx, in)
}

// AddTaprootScriptSpendConnection validates names and delegates to the
// graph, then verifies the resulting input/output pairing is
// type-compatible.
func (p *Protocol) AddTaprootScriptSpendConnection(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connect(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

// --- Segwit v0 outputs/inputs/connections ---

// AddP2WPKHOutput adds a standard pay-to-witness-pubkey-hash output.
func (p *Protocol) AddP2WPKHOutput(tx string, value btcutil.Amount, pubKey *btcec.PublicKey) (int, error) {
	addrPubKey, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), &defaultNetParams)
	if err != nil {
		return 0, fmt.Errorf("p2wpkh address: %w", err)
	}
	scriptPubKey, err := txscript.PayToAddrScript(addrPubKey)
	if err != nil {
		return 0, fmt.Errorf("p2wpkh script pubkey: %w", err)
	}
	out := graph.NewSegwitKeyOutput(value, pubKey)
	out.ScriptPubKey = scriptPubKey
	return p.Graph.AddTransactionOutput(tx, out)
}

// AddP2WPKHInput adds an input spendable by a single ECDSA signature
// under the prevout's public key.
func (p *Protocol) AddP2WPKHInput(tx string, sequence uint32) (int, error) {
	in := graph.InputType{
		Sighash:   graph.SighashECDSA,
		SpendMode: graph.NewSpendSegwit(),
		Sequence:  sequence,
	}
	return p.Graph.AddTransactionInput(tx, in)
}

// AddP2WSHOutput adds a pay-to-witness-script-hash output guarded by a
// single spending script.
func (p *Protocol) AddP2WSHOutput(tx string, value btcutil.Amount, script *graph.ProtocolScript) (int, error) {
	addrScriptHash, err := btcutil.NewAddressWitnessScriptHash(chainhashSHA256(script.Script), &defaultNetParams)
	if err != nil {
		return 0, fmt.Errorf("p2wsh address: %w", err)
	}
	scriptPubKey, err := txscript.PayToAddrScript(addrScriptHash)
	if err != nil {
		return 0, fmt.Errorf("p2wsh script pubkey: %w", err)
	}
	out := graph.NewSegwitScriptOutput(value, script)
	out.ScriptPubKey = scriptPubKey
	return p.Graph.AddTransactionOutput(tx, out)
}

// AddP2WSHInput adds an input spendable by satisfying the prevout's
// witness script.
func (p *Protocol) AddP2WSHInput(tx string, sequence uint32) (int, error) {
	in := graph.InputType{
		Sighash:   graph.SighashECDSA,
		SpendMode: graph.NewSpendSegwit(),
		Sequence:  sequence,
	}
	return p.Graph.AddTransactionInput(tx, in)
}

func (p *Protocol) connectSegwit(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connect(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

// AddP2WPKHConnection and AddP2WSHConnection both just validate and wire
// the edge; the compatibility check in p.connect applies uniformly.
func (p *Protocol) AddP2WPKHConnection(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connectSegwit(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

func (p *Protocol) AddP2WSHConnection(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connectSegwit(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

// --- Domain-specific output helpers ---

// AddSpeedupOutput adds a CPFP anchor-style output: a P2WPKH output
// under key, letting any holder of that key bump the transaction's fee
// by spending it together with a new input.
func (p *Protocol) AddSpeedupOutput(tx string, value btcutil.Amount, key *btcec.PublicKey) (int, error) {
	return p.AddP2WPKHOutput(tx, value, key)
}

// AddTimelockOutput adds a taproot output spendable, after blocks
// confirmations, by a signature under timelockKey.
func (p *Protocol) AddTimelockOutput(tx string, value btcutil.Amount, blocks int64, timelockKey *btcec.PublicKey) (int, error) {
	script, err := graph.Timelock(blocks, timelockKey)
	if err != nil {
		return 0, err
	}
	return p.AddTaprootScriptSpendOutput(tx, value, []graph.Leaf{{Script: script, SignMode: graph.SignSingle}})
}

// AddTimelockInput adds an input spending a timelock output's single
// leaf; sequence must encode the same relative/absolute timelock the
// output's script checks.
func (p *Protocol) AddTimelockInput(tx string, sequence uint32) (int, error) {
	return p.AddTaprootScriptSpendInput(tx, graph.NewSpendScript(0), sequence)
}

func (p *Protocol) AddTimelockConnection(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connect(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

// AddOpReturnOutput adds a zero-value, unspendable data-carrier output.
func (p *Protocol) AddOpReturnOutput(tx string, data []byte) (int, error) {
	scriptPubKey, err := graph.OpReturn(data)
	if err != nil {
		return 0, err
	}
	out := graph.NewSegwitUnspendableOutput(data)
	out.ScriptPubKey = scriptPubKey
	return p.Graph.AddTransactionOutput(tx, out)
}

// --- Connections ---

// Connect validates both names, then delegates to the graph and checks
// that the resulting pairing is type-compatible.
func (p *Protocol) Connect(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	return p.connect(connName, fromTx, fromOutIdx, toTx, toInIdx)
}

func (p *Protocol) connect(connName, fromTx string, fromOutIdx int, toTx string, toInIdx int) error {
	if err := graph.CheckEmptyConnectionName(connName); err != nil {
		return err
	}
	if err := p.Graph.Connect(fromTx, fromOutIdx, toTx, toInIdx); err != nil {
		return err
	}
	return p.checkCompatibility(toTx, toInIdx)
}

// ConnectExternal wires toTx's input to an already-confirmed on-chain
// UTXO identified by txid/vout, described by output.
func (p *Protocol) ConnectExternal(connName string, txid string, vout uint32, output graph.OutputType, toTx string, toInIdx int) error {
	if err := graph.CheckEmptyConnectionName(connName); err != nil {
		return err
	}
	if err := p.Graph.ConnectWithExternalTransaction(txid, vout, output, toTx, toInIdx); err != nil {
		return err
	}
	return p.checkCompatibility(toTx, toInIdx)
}

func (p *Protocol) checkCompatibility(toTx string, toInIdx int) error {
	tx, err := p.Graph.GetTransaction(toTx)
	if err != nil {
		return err
	}
	in := &tx.Inputs[toInIdx]
	if in.OutputRef == nil {
		return nil
	}
	if !in.Sighash.CompatibleWith(in.OutputRef.Kind()) {
		return errIncompatibleSpend(in.Sighash, in.OutputRef.Kind())
	}
	if !spendModeCompatible(in.SpendMode, in.OutputRef.Kind()) {
		return errIncompatibleSpendMode(in.SpendMode, in.OutputRef.Kind())
	}
	return nil
}

func spendModeCompatible(mode graph.SpendMode, kind graph.OutputKind) bool {
	switch mode.Kind() {
	case graph.SpendSegwit:
		return kind == graph.OutputSegwitKey || kind == graph.OutputSegwitScript || kind == graph.OutputExternalUnknown
	case graph.SpendNone:
		return true
	default:
		return kind == graph.OutputTaprootKey || kind == graph.OutputTaproot || kind == graph.OutputExternalUnknown
	}
}

// ConnectRounds wires a ping-pong chain of rounds pairs of transactions
// named "{fromPrefix}_{round}" / "{toPrefix}_{round}" for round in
// [0, rounds), each connection guarded by a fresh taproot script-spend
// output using a freshly generated unspendable internal key. Per round it
// creates the direct connection "from_{r}" -> "to_{r}" (guarded by
// leafBuilderFrom) and, except for the last round, the reverse connection
// "to_{r}" -> "from_{r+1}" (guarded by leafBuilderTo) that lets the
// responder hand play back to the next round's challenger, exploding the
// two-name template into 2*rounds concrete transactions joined by
// 2*rounds-1 connections. It returns the
// first "from" and last "to" transaction names so the caller can wire the
// chain's two ends into the rest of the protocol.
func (p *Protocol) ConnectRounds(
	fromPrefix, toPrefix string,
	rounds uint32,
	leafBuilderFrom, leafBuilderTo func(round uint32) ([]graph.Leaf, error),
) (string, string, error) {
	if err := graph.CheckZeroRounds(rounds); err != nil {
		return "", "", err
	}

	ensureTx := func(name string) error {
		if p.Graph.ContainsTransaction(name) {
			return nil
		}
		return p.AddTransaction(name)
	}

	connectPair := func(connName, from, to string, leafBuilder func(uint32) ([]graph.Leaf, error), round uint32) error {
		leaves, err := leafBuilder(round)
		if err != nil {
			return fmt.Errorf("connect rounds: build leaves for round %d: %w", round, err)
		}
		if err := ensureTx(from); err != nil {
			return err
		}
		if err := ensureTx(to); err != nil {
			return err
		}
		outIdx, err := p.AddTaprootScriptSpendOutput(from, 0, leaves)
		if err != nil {
			return err
		}
		inIdx, err := p.AddTaprootScriptSpendInput(to, graph.NewSpendScriptsOnly(), wire.MaxTxInSequenceNum)
		if err != nil {
			return err
		}
		return p.connect(connName, from, outIdx, to, inIdx)
	}

	for round := uint32(0); round < rounds-1; round++ {
		from := fmt.Sprintf("%s_%d", fromPrefix, round)
		to := fmt.Sprintf("%s_%d", toPrefix, round)

		// Direct connection for this round: from_{r} -> to_{r}.
		connName := fmt.Sprintf("%s_to_%s_round_%d", from, to, round)
		if err := connectPair(connName, from, to, leafBuilderFrom, round); err != nil {
			return "", "", err
		}

		// Reverse connection into the next round: to_{r} -> from_{r+1}.
		nextFrom := fmt.Sprintf("%s_%d", fromPrefix, round+1)
		revName := fmt.Sprintf("%s_to_%s_round_%d", to, nextFrom, round)
		if err := connectPair(revName, to, nextFrom, leafBuilderTo, round); err != nil {
			return "", "", err
		}
	}

	// Final direct connection, outside the loop: no reverse connection
	// follows it.
	lastRound := rounds - 1
	from := fmt.Sprintf("%s_%d", fromPrefix, lastRound)
	to := fmt.Sprintf("%s_%d", toPrefix, lastRound)
	connName := fmt.Sprintf("%s_to_%s_round_%d", from, to, lastRound)
	if err := connectPair(connName, from, to, leafBuilderFrom, lastRound); err != nil {
		return "", "", err
	}

	first := fmt.Sprintf("%s_0", fromPrefix)
	return first, to, nil
}
