package graph

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
)

// nums is the fixed, provably-unspendable generator point constant used to
// build a NUMS (nothing-up-my-sleeve) internal key, taken from BIP-341's
// suggested construction.
const nums = "0250929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"

// UnspendableKey derives a fresh internal key H + r*G for a script-only
// taproot output, where H is the fixed NUMS point and r is a random
// scalar. Its key-path is unusable by anyone since no one knows a discrete
// log of H, guaranteeing the output can only be spent via a tapleaf.
//
// TODO: each tap-tree gets a different random unspendable key; for two
// participants to agree on the same one they need a shared deterministic
// seed for r, negotiated up front. Until then this key differs run to run.
func UnspendableKey() (*btcec.PublicKey, error) {
	hBytes, err := hex.DecodeString(nums)
	if err != nil {
		return nil, &UnspendableKeyError{Reason: "failed to decode NUMS constant", Cause: err}
	}
	h, err := btcec.ParsePubKey(hBytes)
	if err != nil {
		return nil, &UnspendableKeyError{Reason: "NUMS constant is not a valid point", Cause: err}
	}

	var rBytes [32]byte
	if _, err := rand.Read(rBytes[:]); err != nil {
		return nil, &UnspendableKeyError{Reason: "failed to generate random scalar", Cause: err}
	}
	_, rG := btcec.PrivKeyFromBytes(rBytes[:])

	var hJacobian, rGJacobian, sum btcec.JacobianPoint
	h.AsJacobian(&hJacobian)
	rG.AsJacobian(&rGJacobian)
	btcec.AddNonConst(&hJacobian, &rGJacobian, &sum)
	sum.ToAffine()

	result := btcec.NewPublicKey(&sum.X, &sum.Y)
	return result, nil
}
