// Package graph implements the closed output/input descriptor types and
// the transaction DAG they live in: nodes are partially-formed Bitcoin
// transactions, edges wire an output to the input it funds.
package graph

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
)

// OutputKind tags the closed set of output variants. Every switch over
// OutputKind must handle all six; an unhandled value is a bug, not a
// recoverable state.
type OutputKind int

const (
	OutputTaprootKey OutputKind = iota
	OutputTaproot
	OutputSegwitKey
	OutputSegwitScript
	OutputSegwitUnspendable
	OutputExternalUnknown
)

func (k OutputKind) String() string {
	switch k {
	case OutputTaprootKey:
		return "taproot-key"
	case OutputTaproot:
		return "taproot-script"
	case OutputSegwitKey:
		return "segwit-key"
	case OutputSegwitScript:
		return "segwit-script"
	case OutputSegwitUnspendable:
		return "segwit-unspendable"
	case OutputExternalUnknown:
		return "external-unknown"
	default:
		return "unknown"
	}
}

// OutputType is a tagged variant describing one output's spend conditions,
// per §3's Output descriptor. Only one of the embedded fields relevant to
// Kind() is populated; the rest are left at their zero value.
type OutputType struct {
	kind OutputKind

	Value        btcutil.Amount
	ScriptPubKey []byte

	// TaprootKey / Taproot
	InternalKey *btcec.PublicKey
	Tweak       *btcec.ModNScalar // optional merkle-root or custom scalar tweak
	Leaves      []Leaf
	SpendInfo   *TapTree // populated lazily, recomputed on load

	// SegwitKey
	PublicKey *btcec.PublicKey

	// SegwitScript
	Script *ProtocolScript

	// SegwitUnspendable
	CarrierData []byte

	// ExternalUnknown
	ExternalTxid string
	ExternalVout uint32
}

// Kind reports which of the six variants this OutputType holds.
func (o OutputType) Kind() OutputKind { return o.kind }

// RestoreOutputType tags fields (built as a plain struct literal by a
// deserializer that cannot reach the unexported kind tag) with kind,
// used only by pkg/protocol's persistence Load path.
func RestoreOutputType(kind OutputKind, fields OutputType) OutputType {
	fields.kind = kind
	return fields
}

// Leaf is one tapscript leaf inside a Taproot output's tap-tree: the
// script plus its sign mode, per §3/§4.1.
type Leaf struct {
	Script   *ProtocolScript
	SignMode SignMode
}

// NewTaprootKeyOutput builds a TaprootKey output descriptor: value, an
// internal key, and an optional tweak (the output's key-path is the only
// spend path).
func NewTaprootKeyOutput(value btcutil.Amount, internalKey *btcec.PublicKey, tweak *btcec.ModNScalar) OutputType {
	return OutputType{
		kind:        OutputTaprootKey,
		Value:       value,
		InternalKey: internalKey,
		Tweak:       tweak,
	}
}

// NewTaprootOutput builds a Taproot (script-spend) output descriptor from
// an internal key and an ordered list of tapleaves. The caller is expected
// to have already called BuildTapTree to populate ScriptPubKey/SpendInfo.
func NewTaprootOutput(value btcutil.Amount, internalKey *btcec.PublicKey, leaves []Leaf) OutputType {
	return OutputType{
		kind:        OutputTaproot,
		Value:       value,
		InternalKey: internalKey,
		Leaves:      leaves,
	}
}

// NewSegwitKeyOutput builds a P2WPKH output descriptor.
func NewSegwitKeyOutput(value btcutil.Amount, pubKey *btcec.PublicKey) OutputType {
	return OutputType{
		kind:      OutputSegwitKey,
		Value:     value,
		PublicKey: pubKey,
	}
}

// NewSegwitScriptOutput builds a P2WSH output descriptor.
func NewSegwitScriptOutput(value btcutil.Amount, script *ProtocolScript) OutputType {
	return OutputType{
		kind:   OutputSegwitScript,
		Value:  value,
		Script: script,
	}
}

// NewSegwitUnspendableOutput builds an OP_RETURN carrier output: zero
// amount, not spendable by any input.
func NewSegwitUnspendableOutput(data []byte) OutputType {
	return OutputType{
		kind:        OutputSegwitUnspendable,
		Value:       0,
		CarrierData: data,
	}
}

// NewExternalUnknownOutput describes an output that lives outside the DAG:
// only its txid and vout are known, used to anchor a connection to a
// pre-existing on-chain UTXO.
func NewExternalUnknownOutput(value btcutil.Amount, scriptPubKey []byte, txid string, vout uint32) OutputType {
	return OutputType{
		kind:         OutputExternalUnknown,
		Value:        value,
		ScriptPubKey: scriptPubKey,
		ExternalTxid: txid,
		ExternalVout: vout,
	}
}

// SighashType tags the signature-hash family an input declares, per the
// compatibility table in §3.
type SighashType int

const (
	SighashTaproot SighashType = iota
	SighashECDSA
)

func (s SighashType) String() string {
	if s == SighashTaproot {
		return "taproot"
	}
	return "ecdsa"
}

// CompatibleWith reports whether an input declaring this sighash type may
// be connected to an output of the given kind, per §3's compatibility
// table.
func (s SighashType) CompatibleWith(kind OutputKind) bool {
	switch s {
	case SighashTaproot:
		return kind == OutputTaprootKey || kind == OutputTaproot || kind == OutputExternalUnknown
	case SighashECDSA:
		return kind == OutputSegwitKey || kind == OutputSegwitScript || kind == OutputExternalUnknown
	default:
		return false
	}
}

// SignMode controls, per tapleaf or per key-path slot, how a signature is
// obtained once its sighash is known.
type SignMode int

const (
	// SignSingle signs with the leaf's own named key.
	SignSingle SignMode = iota
	// SignAggregate defers to a MuSig2 session held by the Key Manager.
	SignAggregate
	// SignSkip computes the hash but requests no signature; the leaf is
	// spendable only by an on-chain prover (e.g. Winternitz, or CSV alone).
	SignSkip
)

// SpendModeKind tags the closed set of per-input spend-mode variants.
type SpendModeKind int

const (
	SpendAll SpendModeKind = iota
	SpendKeyOnly
	SpendScriptsOnly
	SpendScripts
	SpendScript
	SpendSegwit
	SpendNone
)

// SpendMode drives which of an input's spendable branches receive
// hashes and signatures, per §3/§4.4's selection semantics.
type SpendMode struct {
	kind SpendModeKind

	// All / KeyOnly
	KeyPathSign SignMode

	// Scripts
	Leaves map[int]struct{}

	// Script
	Leaf int
}

func (m SpendMode) Kind() SpendModeKind { return m.kind }

// RestoreSpendMode rebuilds a SpendMode from its tagged fields, used only
// by pkg/protocol's persistence Load path.
func RestoreSpendMode(kind SpendModeKind, keyPathSign SignMode, leaves map[int]struct{}, leaf int) SpendMode {
	return SpendMode{kind: kind, KeyPathSign: keyPathSign, Leaves: leaves, Leaf: leaf}
}

func NewSpendAll(keyPathSign SignMode) SpendMode {
	return SpendMode{kind: SpendAll, KeyPathSign: keyPathSign}
}

func NewSpendKeyOnly(keyPathSign SignMode) SpendMode {
	return SpendMode{kind: SpendKeyOnly, KeyPathSign: keyPathSign}
}

func NewSpendScriptsOnly() SpendMode {
	return SpendMode{kind: SpendScriptsOnly}
}

func NewSpendScripts(leaves ...int) SpendMode {
	set := make(map[int]struct{}, len(leaves))
	for _, l := range leaves {
		set[l] = struct{}{}
	}
	return SpendMode{kind: SpendScripts, Leaves: set}
}

func NewSpendScript(leaf int) SpendMode {
	return SpendMode{kind: SpendScript, Leaf: leaf}
}

func NewSpendSegwit() SpendMode {
	return SpendMode{kind: SpendSegwit}
}

func NewSpendNone() SpendMode {
	return SpendMode{kind: SpendNone}
}

// SelectsLeaf reports whether spend mode m requests branch leaf index i
// out of n total leaves.
func (m SpendMode) SelectsLeaf(i, n int) bool {
	switch m.kind {
	case SpendAll, SpendScriptsOnly:
		return true
	case SpendScripts:
		_, ok := m.Leaves[i]
		return ok
	case SpendScript:
		return m.Leaf == i
	default:
		return false
	}
}

// SelectsKeyPath reports whether spend mode m requests the key-path slot,
// and if so, under which sign mode.
func (m SpendMode) SelectsKeyPath() (SignMode, bool) {
	switch m.kind {
	case SpendAll:
		return m.KeyPathSign, true
	case SpendKeyOnly:
		return m.KeyPathSign, true
	default:
		return 0, false
	}
}

// Signature is a tagged variant holding whichever signature type an input
// slot ended up with, or none.
type Signature struct {
	Present bool
	Schnorr *schnorr.Signature
	ECDSA   *ecdsa.Signature
}

// InputType is the per-input descriptor from §3: the output it spends
// (populated at connect-time), its declared sighash type, spend mode,
// sequence, and the two parallel result vectors filled by the pipeline.
type InputType struct {
	// OutputRef is a copy of the funding output's descriptor, populated by
	// TransactionGraph.Connect so every input locally knows its own
	// prevout and spend conditions.
	OutputRef *OutputType

	Sighash   SighashType
	SpendMode SpendMode
	Sequence  uint32

	// HashedMessages and Signatures are parallel vectors, one entry per
	// spendable branch: length len(leaves)+1 for taproot inputs (slots
	// 0..n-1 are tapleaves, slot n is the key path), length 1 for segwit
	// inputs. A nil entry means "this slot was not selected by SpendMode".
	HashedMessages [][]byte
	Signatures     []Signature

	// AnnexLen, when non-zero, reserves room in fee estimation for a
	// BIP-341 annex on this input's witness.
	AnnexLen int
}

// branchCount returns how many hashed-message/signature slots this input
// should carry, given its funding output.
func (in *InputType) branchCount() int {
	if in.OutputRef == nil {
		return 1
	}
	switch in.OutputRef.Kind() {
	case OutputTaproot:
		return len(in.OutputRef.Leaves) + 1
	case OutputTaprootKey:
		return 1
	default:
		return 1
	}
}

// EnsureSlots grows HashedMessages/Signatures to branchCount(), preserving
// any already-populated entries.
func (in *InputType) EnsureSlots() {
	n := in.branchCount()
	if len(in.HashedMessages) < n {
		grown := make([][]byte, n)
		copy(grown, in.HashedMessages)
		in.HashedMessages = grown
	}
	if len(in.Signatures) < n {
		grown := make([]Signature, n)
		copy(grown, in.Signatures)
		in.Signatures = grown
	}
}
