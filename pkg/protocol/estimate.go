package protocol

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// witnessOverheadPerItem is the per-stack-item compactsize-length prefix
// cost §4.6 folds into "overhead"; every pushed item costs at least one
// byte to declare its own length.
const witnessOverheadPerItem = 1

// DefaultSafetyMargin is the fallback fractional cushion applied on top
// of the raw feerate*vsize floor when no caller-supplied margin is
// configured; per §9's open question, the original's default is not
// stable across callers, so this value is this implementation's own
// choice, not a reproduction of the source's.
const DefaultSafetyMargin = 0.10

// ComputeMinimumOutputValues walks every transaction in topological
// order and, for each still-zero-valued output, sets it to the minimum
// relay fee its funded child transaction would need to pay at feeRate
// (satoshis per vbyte), inflated by safetyMargin, per §4.6's estimator.
// Outputs with an already-nonzero value (outputs the caller fixed
// explicitly) are left untouched, as are zero-valued outputs that no
// child spends, such as op_return carriers.
func (p *Protocol) ComputeMinimumOutputValues(feeRate float64, safetyMargin float64) error {
	order, err := p.Graph.Sort()
	if err != nil {
		return err
	}

	for _, name := range order {
		node, err := p.Graph.GetTransaction(name)
		if err != nil {
			return err
		}

		vsize, err := estimateVirtualSize(node)
		if err != nil {
			return fmt.Errorf("estimate %s: %w", name, err)
		}
		minFee := btcutil.Amount(math.Ceil(feeRate * float64(vsize) * (1 + safetyMargin)))

		for i := range node.Inputs {
			conn, ok := p.Graph.GetConnection(name, i)
			if !ok || conn.Kind != graph.ConnectionInternal {
				continue
			}
			parent, err := p.Graph.GetTransaction(conn.FromTransaction)
			if err != nil {
				return err
			}
			if parent.Outputs[conn.FromOutputIndex].Value != 0 {
				continue
			}
			if err := p.Graph.SetOutputValue(conn.FromTransaction, conn.FromOutputIndex, minFee); err != nil {
				return err
			}
		}
	}
	return nil
}

// estimateVirtualSize reproduces §4.6's three-step estimate for one
// not-yet-built node: stripped size from a placeholder wire.MsgTx (real
// script-pubkeys, empty scriptSigs/witnesses), plus an upper bound on
// every input's witness stack, combined via the usual segwit discount.
func estimateVirtualSize(node *graph.Transaction) (int, error) {
	tx := wire.NewMsgTx(2)
	for range node.Inputs {
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	}
	for i := range node.Outputs {
		tx.AddTxOut(wire.NewTxOut(int64(node.Outputs[i].Value), node.Outputs[i].ScriptPubKey))
	}
	strippedSize := tx.SerializeSizeStripped()

	var totalWitnessBytes int
	for i := range node.Inputs {
		wb, err := witnessBytes(&node.Inputs[i])
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
		totalWitnessBytes += wb
	}

	if totalWitnessBytes == 0 {
		return strippedSize, nil
	}
	// +2 for the segwit marker and flag bytes, discounted 4x along with
	// the rest of the witness data.
	return strippedSize + int(math.Ceil(float64(totalWitnessBytes+2)/4.0)), nil
}

// witnessBytes upper-bounds one input's witness stack size, per §4.6
// step 2's per-type formulas. An input with no connected prevout yet
// (still being wired up) contributes zero.
func witnessBytes(in *graph.InputType) (int, error) {
	out := in.OutputRef
	if out == nil {
		return 0, nil
	}

	switch out.Kind() {
	case graph.OutputSegwitKey:
		// compactsize(2) + signature + pubkey, each stack item also
		// paying its own length-prefix overhead.
		return wire.VarIntSerializeSize(2) +
			witnessOverheadPerItem + 73 +
			witnessOverheadPerItem + 33, nil

	case graph.OutputSegwitScript:
		items := estimateSegwitScriptItemCount(out.Script)
		return wire.VarIntSerializeSize(uint64(items)) +
			items*(witnessOverheadPerItem+73) +
			witnessOverheadPerItem + len(out.Script.Script), nil

	case graph.OutputTaprootKey:
		return wire.VarIntSerializeSize(1) + witnessOverheadPerItem + 65 + in.AnnexLen, nil

	case graph.OutputTaproot:
		return estimateTaprootWitnessBytes(in, out)

	case graph.OutputSegwitUnspendable, graph.OutputExternalUnknown:
		return 0, nil

	default:
		return 0, fmt.Errorf("unhandled output kind %v", out.Kind())
	}
}

// estimateSegwitScriptItemCount guesses how many stack items a P2WSH
// input's witness needs beyond the script itself: one per named key the
// script embeds (signature-sized placeholders), or one if it embeds
// none (a bare script with no named keys, e.g. a pure timelock).
func estimateSegwitScriptItemCount(script *graph.ProtocolScript) int {
	n := len(script.Keys)
	if n == 0 {
		return 1
	}
	return n
}

// estimateTaprootWitnessBytes takes the max over every leaf spend_mode
// selects (the costliest branch, since only one is ever actually
// revealed on broadcast) of compactsize(stack+2) + Σ(overhead+item) +
// overhead(script) + overhead(control_block), or the key-path cost if
// that branch is also selected and larger.
func estimateTaprootWitnessBytes(in *graph.InputType, out *graph.OutputType) (int, error) {
	n := len(out.Leaves)
	best := 0

	if _, wantsKeyPath := in.SpendMode.SelectsKeyPath(); wantsKeyPath {
		best = wire.VarIntSerializeSize(1) + witnessOverheadPerItem + 65 + in.AnnexLen
	}

	for leafIndex := 0; leafIndex < n; leafIndex++ {
		if !in.SpendMode.SelectsLeaf(leafIndex, n) {
			continue
		}
		if out.SpendInfo == nil {
			return 0, fmt.Errorf("leaf %d: output has no tap-tree spend info", leafIndex)
		}
		controlBlock := out.SpendInfo.ControlBlock(out.InternalKey, leafIndex)
		leaf := out.Leaves[leafIndex]

		stackItems := estimateSegwitScriptItemCount(leaf.Script)
		cost := wire.VarIntSerializeSize(uint64(stackItems+2)) +
			stackItems*(witnessOverheadPerItem+73) +
			witnessOverheadPerItem + len(leaf.Script.Script) +
			witnessOverheadPerItem + len(controlBlock) +
			in.AnnexLen

		if cost > best {
			best = cost
		}
	}
	return best, nil
}
