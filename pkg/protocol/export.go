package protocol

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// ExportPSBT packages name's finalized transaction as a PSBT (BIP-174),
// one WitnessUtxo plus sighash-type hint per input, for handoff to an
// external signer or co-signer that does not speak this package's own
// InputArgs/witness-assembly protocol. It carries no signatures of its
// own; whatever Build/BuildAndSign already produced is not re-embedded,
// since PSBT has no slot for a Schnorr script-path signature keyed by an
// arbitrary tapleaf index outside of a TapScriptSig entry, and this
// implementation has no external consumer that expects one.
func (p *Protocol) ExportPSBT(name string) (*psbt.Packet, error) {
	node, err := p.Graph.GetTransaction(name)
	if err != nil {
		return nil, err
	}
	tx, err := p.Wire(name)
	if err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(tx.Copy())
	if err != nil {
		return nil, fmt.Errorf("export_psbt %s: %w", name, err)
	}

	for i := range node.Inputs {
		in := &node.Inputs[i]
		out := in.OutputRef
		if out == nil {
			return nil, fmt.Errorf("export_psbt %s: input %d: no connected prevout", name, i)
		}

		utxo := &wire.TxOut{
			Value:    int64(out.Value),
			PkScript: out.ScriptPubKey,
		}
		packet.Inputs[i].WitnessUtxo = utxo
		packet.Inputs[i].SighashType = exportSighashType(in)

		if out.Kind() == graph.OutputTaproot || out.Kind() == graph.OutputTaprootKey {
			packet.Inputs[i].TaprootInternalKey = out.InternalKey.SerializeCompressed()
		}
	}

	return packet, nil
}

func exportSighashType(in *graph.InputType) txscript.SigHashType {
	if in.Sighash == graph.SighashTaproot {
		return txscript.SigHashDefault
	}
	return txscript.SigHashAll
}
