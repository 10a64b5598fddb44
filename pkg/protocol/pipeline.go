package protocol

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// Wire returns the finalized wire.MsgTx for name, built by the most
// recent Build/BuildAndSign call. It is nil before Build has run.
func (p *Protocol) Wire(name string) (*wire.MsgTx, error) {
	tx, ok := p.wire[name]
	if !ok {
		return nil, fmt.Errorf("protocol %s: transaction %q not yet built", p.Name, name)
	}
	return tx, nil
}

// Txid returns name's finalized txid string, as written during Build's
// pass 1.
func (p *Protocol) Txid(name string) (string, error) {
	tx, err := p.Graph.GetTransaction(name)
	if err != nil {
		return "", err
	}
	if tx.Txid == "" {
		return "", fmt.Errorf("protocol %s: transaction %q has no finalized txid", p.Name, name)
	}
	return tx.Txid, nil
}

// Build runs the two-pass pipeline of §4.4 without requesting any
// signatures: pass 1 finalizes every node's wire.MsgTx and txid in
// topological order, wiring each descendant's previous-output as it
// goes; pass 2 computes, for every input, the hashed messages its
// declared spend mode selects (and opens any MuSig2 nonce rounds an
// Aggregate slot requires), leaving signatures empty.
func (p *Protocol) Build() error {
	return p.run(false)
}

// BuildAndSign runs Build's two passes and additionally requests (and
// verifies) a signature for every populated hash slot, per §4.4.
func (p *Protocol) BuildAndSign() error {
	return p.run(true)
}

func (p *Protocol) run(sign bool) error {
	order, err := p.Graph.Sort()
	if err != nil {
		return err
	}

	if p.wire == nil {
		p.wire = make(map[string]*wire.MsgTx)
	}

	// --- Pass 1: assemble every node's wire.MsgTx and finalize its txid,
	// propagating each one into its descendants' previous-outputs before
	// those descendants are themselves built. ---
	for _, name := range order {
		node, err := p.Graph.GetTransaction(name)
		if err != nil {
			return err
		}

		tx := wire.NewMsgTx(2)
		for i := range node.Inputs {
			in := &node.Inputs[i]
			txid, vout, err := p.Graph.ResolveInputOutpoint(name, i)
			if err != nil {
				return fmt.Errorf("build %s: input %d: %w", name, i, err)
			}
			hash, err := chainhash.NewHashFromStr(txid)
			if err != nil {
				return fmt.Errorf("build %s: input %d: parse txid %q: %w", name, i, txid, err)
			}
			tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, vout), nil, nil))
			tx.TxIn[i].Sequence = in.Sequence
		}
		for i := range node.Outputs {
			out := &node.Outputs[i]
			tx.AddTxOut(wire.NewTxOut(int64(out.Value), out.ScriptPubKey))
		}

		p.wire[name] = tx
		if err := p.Graph.SetTxid(name, tx.TxHash().String()); err != nil {
			return err
		}
	}

	// --- Pass 2: hash (and, if sign, sign+verify) every input's
	// spendable branches. ---
	for _, name := range order {
		node, err := p.Graph.GetTransaction(name)
		if err != nil {
			return err
		}
		tx := p.wire[name]

		prevouts, err := p.Graph.GetPrevouts(name)
		if err != nil {
			return err
		}
		prevoutTxOuts, err := prevoutsToTxOuts(prevouts)
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
		fetcher := txscript.NewMultiPrevOutFetcher(nil)
		for i, o := range prevoutTxOuts {
			fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, o)
		}
		sigCache := txscript.NewTxSigHashes(tx, fetcher)

		for i := range node.Inputs {
			in := &node.Inputs[i]
			out := in.OutputRef
			if out == nil {
				return fmt.Errorf("build %s: input %d: no connected prevout", name, i)
			}

			switch in.Sighash {
			case graph.SighashTaproot:
				if err := hashTaprootInput(p.km, name, i, tx, prevoutTxOuts, sigCache, in, out); err != nil {
					return err
				}
				if sign {
					if err := signTaprootInput(p.km, name, i, in, out); err != nil {
						return err
					}
				}
			case graph.SighashECDSA:
				if err := hashSegwitInput(name, i, tx, sigCache, in, out); err != nil {
					return err
				}
				if sign {
					if err := signSegwitInput(p.km, name, i, in, out); err != nil {
						return err
					}
				}
			default:
				return fmt.Errorf("build %s: input %d: unhandled sighash type %v", name, i, in.Sighash)
			}
		}
	}

	return nil
}
