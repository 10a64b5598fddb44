package protocol

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// InputArgs is the caller-supplied stack of extra witness items for one
// input, per §4.7: signatures produced by Build/BuildAndSign are pulled
// automatically from the input's own Signatures slot; Extra carries
// anything the protocol core cannot know on its own (a Winternitz
// signature's preimages, an application-level proof blob). LeafIndex
// selects which tapleaf is being spent for a TaprootScript{leaf} input;
// it is ignored for every other spend mode.
type InputArgs struct {
	LeafIndex int
	Extra     [][]byte
}

// NewInputArgs returns an empty InputArgs for the taproot key path, or
// for a segwit input.
func NewInputArgs() InputArgs {
	return InputArgs{}
}

// ForLeaf returns an InputArgs selecting tapleaf leafIndex.
func ForLeaf(leafIndex int) InputArgs {
	return InputArgs{LeafIndex: leafIndex}
}

// PushSchnorr appends a Schnorr signature in its 64-byte serialized form.
func (a *InputArgs) PushSchnorr(sig *schnorr.Signature) {
	a.Extra = append(a.Extra, sig.Serialize())
}

// PushECDSA appends an ECDSA signature in DER form followed by the
// sighash-type byte, the standard segwit-v0 witness encoding.
func (a *InputArgs) PushECDSA(sig *ecdsa.Signature, hashType byte) {
	a.Extra = append(a.Extra, append(sig.Serialize(), hashType))
}

// PushWinternitz appends one Winternitz-signed message as (preimage,
// digit) pairs, one pair per digit in the order appendWinternitzVerify
// expects (message digits first, checksum digits last, matching
// graph.WinternitzPublicKey.Hashes). A zero digit pushes an empty byte
// string rather than a literal 0x00, matching Bitcoin Script's own
// minimal-encoding of zero as an empty push.
func (a *InputArgs) PushWinternitz(sig *graph.WinternitzSignature) {
	for i, preimage := range sig.Preimages {
		a.Extra = append(a.Extra, preimage)
		if sig.Digits[i] == 0 {
			a.Extra = append(a.Extra, []byte{})
		} else {
			a.Extra = append(a.Extra, []byte{sig.Digits[i]})
		}
	}
}

// PushRaw appends an arbitrary byte string verbatim.
func (a *InputArgs) PushRaw(b []byte) {
	a.Extra = append(a.Extra, b)
}

// TransactionToSend assembles the consensus-valid witness for every
// input of name using args (keyed by input index) and the signatures
// Build/BuildAndSign already computed, returning the fully-witnessed
// transaction ready to broadcast. Per §4.7:
//
//   - TaprootKey: pushes args' extra items, then the stored key-path
//     signature.
//   - TaprootScript{leaf}: pushes args' extra items, then the stored
//     leaf signature (if the leaf's sign mode produced one), then the
//     leaf script, then the control block, after verifying the control
//     block actually commits to the chosen leaf.
//   - Segwit key: pushes the stored signature then the public key.
//   - Segwit script: pushes args' extra items, then the stored signature
//     (if signSegwitInput produced one), then the witness script.
func (p *Protocol) TransactionToSend(name string, args map[int]InputArgs) (*wire.MsgTx, error) {
	node, err := p.Graph.GetTransaction(name)
	if err != nil {
		return nil, err
	}
	tx, err := p.Wire(name)
	if err != nil {
		return nil, err
	}
	tx = tx.Copy()

	for i := range node.Inputs {
		in := &node.Inputs[i]
		out := in.OutputRef
		if out == nil {
			return nil, fmt.Errorf("transaction_to_send %s: input %d: no connected prevout", name, i)
		}
		a := args[i]

		witness, err := assembleWitness(name, i, in, out, a)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].Witness = witness
	}
	return tx, nil
}

func assembleWitness(name string, inputIndex int, in *graph.InputType, out *graph.OutputType, a InputArgs) (wire.TxWitness, error) {
	switch out.Kind() {
	case graph.OutputTaprootKey:
		return assembleKeyPathWitness(name, inputIndex, in, out, a, len(out.Leaves))

	case graph.OutputTaproot:
		if signMode, wantsKeyPath := in.SpendMode.SelectsKeyPath(); wantsKeyPath {
			_ = signMode
			return assembleKeyPathWitness(name, inputIndex, in, out, a, len(out.Leaves))
		}
		return assembleScriptPathWitness(name, inputIndex, in, out, a)

	case graph.OutputSegwitKey:
		sig := in.Signatures[0]
		if !sig.Present || sig.ECDSA == nil {
			return nil, errMissingSignature(name, inputIndex, 0)
		}
		return wire.TxWitness{
			append(sig.ECDSA.Serialize(), byte(0x01)),
			out.PublicKey.SerializeCompressed(),
		}, nil

	case graph.OutputSegwitScript:
		witness := make(wire.TxWitness, 0, len(a.Extra)+2)
		witness = append(witness, a.Extra...)
		if sig := in.Signatures[0]; sig.Present && sig.ECDSA != nil {
			witness = append(witness, append(sig.ECDSA.Serialize(), byte(0x01)))
		}
		witness = append(witness, out.Script.Script)
		return witness, nil

	default:
		return nil, fmt.Errorf("transaction_to_send %s: input %d: output kind %v is not spendable", name, inputIndex, out.Kind())
	}
}

func assembleKeyPathWitness(name string, inputIndex int, in *graph.InputType, out *graph.OutputType, a InputArgs, leafCount int) (wire.TxWitness, error) {
	slot := leafCount
	if slot >= len(in.Signatures) {
		return nil, errMissingSignature(name, inputIndex, slot)
	}
	sig := in.Signatures[slot]
	if !sig.Present || sig.Schnorr == nil {
		return nil, errMissingSignature(name, inputIndex, slot)
	}
	witness := make(wire.TxWitness, 0, len(a.Extra)+1)
	witness = append(witness, a.Extra...)
	witness = append(witness, sig.Schnorr.Serialize())
	return witness, nil
}

func assembleScriptPathWitness(name string, inputIndex int, in *graph.InputType, out *graph.OutputType, a InputArgs) (wire.TxWitness, error) {
	leafIndex := a.LeafIndex
	if leafIndex < 0 || leafIndex >= len(out.Leaves) {
		return nil, fmt.Errorf("transaction_to_send %s: input %d: leaf index %d out of range", name, inputIndex, leafIndex)
	}
	if out.SpendInfo == nil {
		return nil, fmt.Errorf("transaction_to_send %s: input %d: output has no tap-tree spend info", name, inputIndex)
	}

	controlBlock := out.SpendInfo.ControlBlock(out.InternalKey, leafIndex)
	if err := verifyControlBlockCommitsToLeaf(out, leafIndex, controlBlock); err != nil {
		return nil, fmt.Errorf("transaction_to_send %s: input %d: %w", name, inputIndex, err)
	}

	leaf := out.Leaves[leafIndex]
	witness := make(wire.TxWitness, 0, len(a.Extra)+3)
	witness = append(witness, a.Extra...)

	// The script's signature check runs before any later opcode consumes
	// the rest of the stack, so the signature must sit on top of every
	// other argument blob — i.e. immediately before script/control_block.
	if leaf.SignMode != graph.SignSkip && leafIndex < len(in.Signatures) {
		if sig := in.Signatures[leafIndex]; sig.Present && sig.Schnorr != nil {
			witness = append(witness, sig.Schnorr.Serialize())
		}
	}

	witness = append(witness, leaf.Script.Script, controlBlock)
	return witness, nil
}

// verifyControlBlockCommitsToLeaf independently re-derives the tap-tree
// root the control block proves membership under (via txscript's own
// control-block parsing and merkle-path walk) and checks it tweaks the
// control block's internal key into the output's stored output key, the
// same verification a BIP-341 validator performs — not merely that this
// package regenerated the same bytes it started from — so a corrupt or
// stale SpendInfo can never produce an unspendable (or, worse, wrong)
// witness.
func verifyControlBlockCommitsToLeaf(out *graph.OutputType, leafIndex int, controlBlock []byte) error {
	leaf := out.Leaves[leafIndex]
	parsed, err := txscript.ParseControlBlock(controlBlock)
	if err != nil {
		return fmt.Errorf("parse control block for leaf %d: %w", leafIndex, err)
	}

	merkleRoot := parsed.RootHash(leaf.Script.Script)
	outputKey := txscript.ComputeTaprootOutputKey(parsed.InternalKey, merkleRoot)

	if !bytes.Equal(schnorr.SerializePubKey(outputKey), schnorr.SerializePubKey(out.SpendInfo.OutputKey)) {
		return fmt.Errorf("control block does not commit to leaf %d", leafIndex)
	}
	return nil
}
