// Package keymanager defines the external Key Manager boundary the
// protocol builder signs through (spec §6): key derivation, MuSig2
// session setup, and per-sighash signing. pkg/protocol never holds a
// private key itself — every cryptographic operation crosses this
// interface so the key material can live in a separate, possibly
// hardware-backed, process.
package keymanager

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// WinternitzDigitWidth selects the hash-chain alphabet size used when
// deriving a Winternitz key, trading signature size for verification
// script length.
type WinternitzDigitWidth int

const (
	// WinternitzBase16 uses 4-bit digits (base 16), the original's
	// default, and is what appendWinternitzVerify assumes.
	WinternitzBase16 WinternitzDigitWidth = iota
)

// KeyManager is the set of operations the protocol builder and witness
// assembler need from key material, matching spec §6's "Key Manager
// (consumed)" list one-for-one.
type KeyManager interface {
	// DeriveKeypair returns the public key at derivation index idx.
	DeriveKeypair(idx uint32) (*btcec.PublicKey, error)

	// DeriveWinternitz returns a fresh Winternitz public key covering a
	// message of msgLen bytes, at derivation index idx.
	DeriveWinternitz(msgLen int, width WinternitzDigitWidth, idx uint32) (*graph.WinternitzPublicKey, error)

	// NewMusig2Session starts (or resumes) a MuSig2 signing session among
	// participants for the local signer identified by myKey, returning the
	// aggregated public key the resulting signatures verify under.
	NewMusig2Session(participants []*btcec.PublicKey, myKey *btcec.PublicKey) (*btcec.PublicKey, error)

	// SignECDSA produces an ECDSA signature over hash under pubkey.
	SignECDSA(hash [32]byte, pubkey *btcec.PublicKey) (*ecdsa.Signature, error)

	// SignSchnorr produces a BIP-340 Schnorr signature over hash under
	// pubkey's untweaked key-path.
	SignSchnorr(hash [32]byte, pubkey *btcec.PublicKey) (*schnorr.Signature, error)

	// SignSchnorrWithTapTweak produces a Schnorr signature over hash under
	// pubkey tweaked by merkleRoot (BIP-341 key-path spend), returning the
	// signature and the tweaked public key it verifies under. A nil or
	// zero-length merkleRoot applies the BIP-86 key-path-only tweak (no
	// script tree committed); a 32-byte merkleRoot commits to that tap-tree
	// root, for a key-path spend of a taproot output that also has script
	// paths.
	SignSchnorrWithTapTweak(hash [32]byte, pubkey *btcec.PublicKey, merkleRoot []byte) (*schnorr.Signature, *btcec.PublicKey, error)

	// GenerateNonce registers this signer's MuSig2 nonce contribution for
	// one (protocolID, messageID) signing round over hash under pubkey,
	// optionally with a BIP-341 tweak applied before aggregation.
	GenerateNonce(messageID string, hash [32]byte, pubkey *btcec.PublicKey, protocolID string, tweak *[32]byte) error

	// GetAggregatedSignature returns the fully-aggregated MuSig2 signature
	// for one (protocolID, messageID) round, once every participant has
	// contributed a nonce and a partial signature.
	GetAggregatedSignature(pubkey *btcec.PublicKey, protocolID, messageID string) (*schnorr.Signature, error)
}
