package keymanager

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// LocalKeyManager is an in-process reference implementation of KeyManager,
// suitable for tests and CLI demos: every key is derived from one BIP-32
// master extended key the way the teacher's deriveChildren/parsePath
// helpers walk a derivation path, with one flat hardened child per index
// rather than a full multi-level path (this package owns the whole
// protocol's key space, so there is no need for account-level structure).
type LocalKeyManager struct {
	mu sync.Mutex

	master     *hdkeychain.ExtendedKey
	masterSeed []byte

	// privByPub lets NewMusig2Session find this signer's own private key
	// given the public key DeriveKeypair previously handed back.
	privByPub map[string]*btcec.PrivateKey

	winternitzSeeds map[uint32][][]byte

	sessions *musig2Sessions
}

// NewLocalKeyManager derives a master extended key from seed (as returned
// by e.g. a BIP-39 wallet) for the given network.
func NewLocalKeyManager(seed []byte, net *chaincfg.Params) (*LocalKeyManager, error) {
	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	return &LocalKeyManager{
		master:          master,
		masterSeed:      seed,
		privByPub:       make(map[string]*btcec.PrivateKey),
		winternitzSeeds: make(map[uint32][][]byte),
		sessions:        newMusig2Sessions(),
	}, nil
}

func (m *LocalKeyManager) child(idx uint32) (*hdkeychain.ExtendedKey, error) {
	return m.master.Child(hdkeychain.HardenedKeyStart + idx)
}

// DeriveKeypair implements KeyManager.
func (m *LocalKeyManager) DeriveKeypair(idx uint32) (*btcec.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	child, err := m.child(idx)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", idx, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key for child %d: %w", idx, err)
	}
	pub := priv.PubKey()
	m.privByPub[pubKeyString(pub)] = priv
	return pub, nil
}

// DeriveWinternitz implements KeyManager.
func (m *LocalKeyManager) DeriveWinternitz(msgLen int, width WinternitzDigitWidth, idx uint32) (*graph.WinternitzPublicKey, error) {
	if width != WinternitzBase16 {
		return nil, fmt.Errorf("unsupported winternitz digit width %v", width)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pub, seeds := deriveWinternitzKey(m.masterSeed, msgLen, idx)
	m.winternitzSeeds[idx] = seeds
	return pub, nil
}

// SignWinternitz signs msg with the key previously handed out at
// derivation index idx. Not part of the KeyManager interface (the
// original's witness assembler calls the key manager for this through a
// side channel keyed by derivation index, not a pubkey/hash pair), but
// exposed here for pkg/protocol's witness assembler to call directly
// against a concrete *LocalKeyManager in tests and CLI demos.
func (m *LocalKeyManager) SignWinternitz(idx uint32, pub *graph.WinternitzPublicKey, msg []byte) (*graph.WinternitzSignature, error) {
	m.mu.Lock()
	seeds, ok := m.winternitzSeeds[idx]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no winternitz key derived at index %d", idx)
	}

	digits := messageToDigits(msg, pub.MessageDigits, pub.ChecksumDigits, pub.Base())
	preimages := signWinternitzDigits(seeds, digits, pub.Base())
	return &graph.WinternitzSignature{
		DerivationIndex: idx,
		Digits:          digits,
		Preimages:       preimages,
	}, nil
}

// NewMusig2Session implements KeyManager.
func (m *LocalKeyManager) NewMusig2Session(participants []*btcec.PublicKey, myKey *btcec.PublicKey) (*btcec.PublicKey, error) {
	m.mu.Lock()
	priv, ok := m.privByPub[pubKeyString(myKey)]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("musig2 session: myKey was not derived by this key manager")
	}

	ctx, err := m.sessions.context(priv, participants)
	if err != nil {
		return nil, fmt.Errorf("musig2 context: %w", err)
	}
	return ctx.CombinedKey()
}

// SignECDSA implements KeyManager.
func (m *LocalKeyManager) SignECDSA(hash [32]byte, pubkey *btcec.PublicKey) (*ecdsa.Signature, error) {
	priv, err := m.privateKeyFor(pubkey)
	if err != nil {
		return nil, err
	}
	return ecdsa.Sign(priv, hash[:]), nil
}

// SignSchnorr implements KeyManager.
func (m *LocalKeyManager) SignSchnorr(hash [32]byte, pubkey *btcec.PublicKey) (*schnorr.Signature, error) {
	priv, err := m.privateKeyFor(pubkey)
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(priv, hash[:])
}

// SignSchnorrWithTapTweak implements KeyManager.
func (m *LocalKeyManager) SignSchnorrWithTapTweak(hash [32]byte, pubkey *btcec.PublicKey, merkleRoot []byte) (*schnorr.Signature, *btcec.PublicKey, error) {
	priv, err := m.privateKeyFor(pubkey)
	if err != nil {
		return nil, nil, err
	}
	tweaked := txscript.TweakTaprootPrivKey(*priv, merkleRoot)
	sig, err := schnorr.Sign(tweaked, hash[:])
	if err != nil {
		return nil, nil, err
	}
	return sig, tweaked.PubKey(), nil
}

// GenerateNonce implements KeyManager.
func (m *LocalKeyManager) GenerateNonce(messageID string, hash [32]byte, pubkey *btcec.PublicKey, protocolID string, tweak *[32]byte) error {
	m.mu.Lock()
	priv, ok := m.privByPub[pubKeyString(pubkey)]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("generate nonce: pubkey was not derived by this key manager")
	}
	ctx, err := m.sessions.context(priv, []*btcec.PublicKey{pubkey})
	if err != nil {
		return fmt.Errorf("musig2 context: %w", err)
	}
	_, err = m.sessions.round(protocolID, messageID, ctx, hash, tweak)
	return err
}

// GetAggregatedSignature implements KeyManager.
func (m *LocalKeyManager) GetAggregatedSignature(pubkey *btcec.PublicKey, protocolID, messageID string) (*schnorr.Signature, error) {
	var empty []*musig2.PartialSignature
	return m.sessions.combine(protocolID, messageID, empty)
}

func (m *LocalKeyManager) privateKeyFor(pubkey *btcec.PublicKey) (*btcec.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	priv, ok := m.privByPub[pubKeyString(pubkey)]
	if !ok {
		return nil, fmt.Errorf("sign: pubkey was not derived by this key manager")
	}
	return priv, nil
}

func pubKeyString(pub *btcec.PublicKey) string {
	return string(pub.SerializeCompressed())
}
