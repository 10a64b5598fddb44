package graph

import (
	"crypto/sha256"
	"math"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
)

// KeyType tags which kind of key a named ScriptKey slot holds.
type KeyType int

const (
	KeyTypeECDSA KeyType = iota
	KeyTypeXOnly
	KeyTypeWinternitz
)

// ScriptKey names a key embedded inside a ProtocolScript, recording where
// (key_position: the stack slot it occupies) and how (derivation_index,
// key_type) it was derived, so a signer can later recover which of its
// keys occupies which slot inside the script.
type ScriptKey struct {
	Name             string
	KeyType          KeyType
	KeyPosition      uint32
	DerivationIndex  uint32
	WinternitzDigits int // only meaningful when KeyType == KeyTypeWinternitz
}

// ProtocolScript bundles a witness/tapscript with the key whose signature
// it ultimately checks and the set of named key slots inside it.
type ProtocolScript struct {
	Script       []byte
	VerifyingKey *btcec.PublicKey
	Keys         map[string]ScriptKey
}

// NewProtocolScript wraps a raw script with its verifying key.
func NewProtocolScript(script []byte, verifyingKey *btcec.PublicKey) *ProtocolScript {
	return &ProtocolScript{
		Script:       script,
		VerifyingKey: verifyingKey,
		Keys:         make(map[string]ScriptKey),
	}
}

// AddKey registers a named key slot inside the script.
func (p *ProtocolScript) AddKey(name string, derivationIndex uint32, keyType KeyType, position uint32) error {
	if blankName(name) {
		return &ScriptError{Reason: "script key name must not be empty"}
	}
	p.Keys[name] = ScriptKey{
		Name:            name,
		KeyType:         keyType,
		KeyPosition:     position,
		DerivationIndex: derivationIndex,
	}
	return nil
}

// GetKey returns the named key slot, if present.
func (p *ProtocolScript) GetKey(name string) (ScriptKey, bool) {
	k, ok := p.Keys[name]
	return k, ok
}

// OrderedKeys returns the script's keys sorted ascending by KeyPosition.
func (p *ProtocolScript) OrderedKeys() []ScriptKey {
	out := make([]ScriptKey, 0, len(p.Keys))
	for _, k := range p.Keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyPosition < out[j].KeyPosition })
	return out
}

func blankName(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

// Timelock builds "<blocks> OP_CSV OP_DROP <key> OP_CHECKSIG": spendable
// once `blocks` relative blocks have passed since confirmation.
func Timelock(blocks int64, timelockKey *btcec.PublicKey) (*ProtocolScript, error) {
	b := txscript.NewScriptBuilder().
		AddInt64(blocks).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(schnorr.SerializePubKey(timelockKey)).
		AddOp(txscript.OP_CHECKSIG)
	script, err := b.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble timelock script", Cause: err}
	}
	return NewProtocolScript(script, timelockKey), nil
}

// CheckSignature builds "<key> OP_CHECKSIG".
func CheckSignature(key *btcec.PublicKey) (*ProtocolScript, error) {
	b := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(key)).
		AddOp(txscript.OP_CHECKSIG)
	script, err := b.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble check-signature script", Cause: err}
	}
	return NewProtocolScript(script, key), nil
}

// CheckAggregatedSignature is CheckSignature against a MuSig2-aggregated
// key; it is the same script shape, the key's provenance differs.
func CheckAggregatedSignature(aggregatedKey *btcec.PublicKey) (*ProtocolScript, error) {
	return CheckSignature(aggregatedKey)
}

// OpReturn builds an unspendable "OP_RETURN <data>" carrier script. This is
// the script-pubkey for a SegwitUnspendable output, not a spending script.
func OpReturn(data []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(data)
	return b.Script()
}

// Speedup builds the same "<key> OP_CHECKSIG" tapleaf as CheckSignature.
func Speedup(key *btcec.PublicKey) (*ProtocolScript, error) {
	return CheckSignature(key)
}

// Kickoff builds the standard kickoff script: aggregated-key signature
// check, followed by Winternitz verification of the ending state and
// ending step number.
func Kickoff(aggregatedKey *btcec.PublicKey, endingState, endingStepNumber *WinternitzPublicKey) (*ProtocolScript, error) {
	builder := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(aggregatedKey)).
		AddOp(txscript.OP_CHECKSIGVERIFY)

	if err := appendWinternitzVerify(builder, endingState, false); err != nil {
		return nil, err
	}
	if err := appendWinternitzVerify(builder, endingStepNumber, false); err != nil {
		return nil, err
	}

	script, err := builder.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble kickoff script", Cause: err}
	}

	ps := NewProtocolScript(script, aggregatedKey)
	if err := ps.AddKey("ending_state", endingState.DerivationIndex, KeyTypeWinternitz, 0); err != nil {
		return nil, err
	}
	if err := ps.AddKey("ending_step_number", endingStepNumber.DerivationIndex, KeyTypeWinternitz, 1); err != nil {
		return nil, err
	}
	return ps, nil
}

// InitialStages builds the standard interval/selection ladder used to seed
// the first stage of a proof-of-interaction skeleton.
func InitialStages(stage int, aggregatedKey *btcec.PublicKey, intervalKeys []*WinternitzPublicKey, selectionKey *WinternitzPublicKey) (*ProtocolScript, error) {
	builder := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(aggregatedKey)).
		AddOp(txscript.OP_CHECKSIGVERIFY)

	for _, k := range intervalKeys {
		if err := appendWinternitzVerify(builder, k, false); err != nil {
			return nil, err
		}
	}
	if err := appendWinternitzVerify(builder, selectionKey, false); err != nil {
		return nil, err
	}
	builder.AddOp(txscript.OP_1)

	script, err := builder.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble initial-stages script", Cause: err}
	}

	ps := NewProtocolScript(script, aggregatedKey)
	for i, k := range intervalKeys {
		if err := ps.AddKey(stageKeyName(stage, i), k.DerivationIndex, KeyTypeWinternitz, uint32(i)); err != nil {
			return nil, err
		}
	}
	if err := ps.AddKey(selectionKeyName(stage), selectionKey.DerivationIndex, KeyTypeWinternitz, uint32(len(intervalKeys))); err != nil {
		return nil, err
	}
	return ps, nil
}

func stageKeyName(stage, index int) string {
	return "stage_" + itoa(stage) + "_" + itoa(index)
}

func selectionKeyName(stage int) string {
	return "selection_" + itoa(stage)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// LinkedMessageChallenge builds the first half of a linked-message
// challenge/response pair: a Winternitz-verified challenge value.
func LinkedMessageChallenge(aggregatedKey *btcec.PublicKey, xc *WinternitzPublicKey) (*ProtocolScript, error) {
	builder := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(aggregatedKey)).
		AddOp(txscript.OP_CHECKSIGVERIFY)
	if err := appendWinternitzVerify(builder, xc, false); err != nil {
		return nil, err
	}
	builder.AddOp(txscript.OP_1)

	script, err := builder.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble linked-message challenge script", Cause: err}
	}
	ps := NewProtocolScript(script, aggregatedKey)
	if err := ps.AddKey("xc", xc.DerivationIndex, KeyTypeWinternitz, 0); err != nil {
		return nil, err
	}
	return ps, nil
}

// LinkedMessageResponse builds the matching response half: challenge,
// prover value, and yielded value, each Winternitz-verified in order.
func LinkedMessageResponse(aggregatedKey *btcec.PublicKey, xc, xp, yp *WinternitzPublicKey) (*ProtocolScript, error) {
	builder := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(aggregatedKey)).
		AddOp(txscript.OP_CHECKSIGVERIFY)
	for _, k := range []*WinternitzPublicKey{xc, xp, yp} {
		if err := appendWinternitzVerify(builder, k, false); err != nil {
			return nil, err
		}
	}
	builder.AddOp(txscript.OP_1)

	script, err := builder.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble linked-message response script", Cause: err}
	}
	ps := NewProtocolScript(script, aggregatedKey)
	names := []string{"xc", "xp", "yp"}
	keys := []*WinternitzPublicKey{xc, xp, yp}
	for i, k := range keys {
		if err := ps.AddKey(names[i], k.DerivationIndex, KeyTypeWinternitz, uint32(i)); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// VerifyWinternitzSignature builds a standalone leaf that does nothing but
// verify one Winternitz-signed message, used directly as a tapleaf.
func VerifyWinternitzSignature(key *btcec.PublicKey, wkey *WinternitzPublicKey) (*ProtocolScript, error) {
	builder := txscript.NewScriptBuilder()
	if err := appendWinternitzVerify(builder, wkey, true); err != nil {
		return nil, err
	}
	script, err := builder.Script()
	if err != nil {
		return nil, &ScriptError{Reason: "failed to assemble winternitz-verify script", Cause: err}
	}
	ps := NewProtocolScript(script, key)
	if err := ps.AddKey("message", wkey.DerivationIndex, KeyTypeWinternitz, 0); err != nil {
		return nil, err
	}
	return ps, nil
}

// appendWinternitzVerify appends the hash-chain ladder that verifies a
// Winternitz signature against wkey's public hashes, digit by digit,
// followed by a checksum verification. If keepMessage is false the
// message's digits are dropped from the stack once verified, mirroring
// the source's ots_checksig(keep_message=false) default.
func appendWinternitzVerify(b *txscript.ScriptBuilder, wkey *WinternitzPublicKey, keepMessage bool) error {
	total := wkey.TotalDigits()
	messageSize := wkey.MessageDigits
	checksumSize := total - messageSize
	base := wkey.Base()
	bitsPerDigit := wkey.BitsPerDigit()
	hashes := wkey.Hashes

	for digitIndex := 0; digitIndex < total; digitIndex++ {
		b.AddInt64(int64(base)).AddOp(txscript.OP_MIN)
		b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_TOALTSTACK).AddOp(txscript.OP_TOALTSTACK)

		for i := 0; i < base; i++ {
			b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160)
		}

		b.AddInt64(int64(base)).AddOp(txscript.OP_FROMALTSTACK).AddOp(txscript.OP_SUB)
		b.AddOp(txscript.OP_PICK)
		b.AddData(hashes[total-1-digitIndex])
		b.AddOp(txscript.OP_EQUALVERIFY)

		for i := 0; i < (base+1)/2; i++ {
			b.AddOp(txscript.OP_2DROP)
		}
	}

	b.AddOp(txscript.OP_FROMALTSTACK).AddOp(txscript.OP_DUP).AddOp(txscript.OP_NEGATE)
	for i := 1; i < messageSize; i++ {
		b.AddOp(txscript.OP_FROMALTSTACK).AddOp(txscript.OP_TUCK).AddOp(txscript.OP_SUB)
	}
	b.AddInt64(int64(base * messageSize)).AddOp(txscript.OP_ADD)

	b.AddOp(txscript.OP_FROMALTSTACK)
	for i := 0; i < checksumSize-1; i++ {
		for j := 0; j < bitsPerDigit; j++ {
			b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_ADD)
		}
		b.AddOp(txscript.OP_FROMALTSTACK).AddOp(txscript.OP_ADD)
	}
	b.AddOp(txscript.OP_EQUALVERIFY)

	if !keepMessage {
		switch {
		case messageSize == 1:
			b.AddOp(txscript.OP_DROP)
		case messageSize%2 == 0:
			for i := 0; i < messageSize/2; i++ {
				b.AddOp(txscript.OP_2DROP)
			}
		default:
			for i := 0; i < messageSize/2; i++ {
				b.AddOp(txscript.OP_2DROP)
			}
			b.AddOp(txscript.OP_DROP)
		}
	}

	return nil
}

// --- Deterministic tap-tree assembly (§4.1) ---

// TapTree is the materialized result of building a tap-tree from an
// ordered list of leaves: the tweaked output key and, per original leaf,
// the inclusion proof needed to build a control block for that leaf.
type TapTree struct {
	OutputKey      *btcec.PublicKey
	OutputKeyOddY  bool
	MerkleRoot     [32]byte
	Proofs         []LeafProof // parallel to the ORIGINAL (pre-duplication) leaf list
}

// LeafProof carries one leaf's script plus the sibling hashes (bottom-up,
// in tree order) needed to build its BIP-341 control block.
type LeafProof struct {
	LeafVersion byte
	Script      []byte
	Siblings    [][32]byte
}

const tapLeafVersion = 0xc0

// BuildTapTree assembles the deterministic tap-tree described in §4.1: for
// n leaves the depth is max(1, ceil(log2(n))); leaves are placed
// left-to-right at that uniform depth; if n is odd, the last leaf is
// duplicated once to balance the tree. The resulting shape only finalizes
// when the padded leaf count is an exact power of two, mirroring the
// upstream TaprootBuilder's own finalize() constraint.
func BuildTapTree(internalKey *btcec.PublicKey, leaves []*ProtocolScript) (*TapTree, error) {
	if len(leaves) == 0 {
		return nil, errEmptyScripts()
	}

	n := len(leaves)
	depth := 1
	if n > 1 {
		depth = int(math.Ceil(math.Log2(float64(n))))
	}

	padded := make([]*ProtocolScript, n)
	copy(padded, leaves)
	if n%2 != 0 {
		padded = append(padded, leaves[n-1])
	}

	type stackNode struct {
		depth int
		hash  [32]byte
	}

	leafHash := func(script []byte) [32]byte {
		return tapLeafHash(tapLeafVersion, script)
	}

	proofSiblings := make([][][32]byte, len(padded))
	for i := range proofSiblings {
		proofSiblings[i] = nil
	}

	var stack []stackNode
	// track which original leaf indices are folded into each stack node
	nodeLeaves := make([][]int, 0, len(padded))

	for i, leaf := range padded {
		h := leafHash(leaf.Script)
		stack = append(stack, stackNode{depth: depth, hash: h})
		nodeLeaves = append(nodeLeaves, []int{i})

		for len(stack) >= 2 && stack[len(stack)-1].depth == stack[len(stack)-2].depth {
			top := stack[len(stack)-1]
			second := stack[len(stack)-2]

			branch := tapBranchHash(second.hash, top.hash)

			leftLeaves := nodeLeaves[len(nodeLeaves)-2]
			rightLeaves := nodeLeaves[len(nodeLeaves)-1]
			for _, li := range leftLeaves {
				proofSiblings[li] = append(proofSiblings[li], top.hash)
			}
			for _, li := range rightLeaves {
				proofSiblings[li] = append(proofSiblings[li], second.hash)
			}

			merged := append(append([]int{}, leftLeaves...), rightLeaves...)

			stack = stack[:len(stack)-2]
			nodeLeaves = nodeLeaves[:len(nodeLeaves)-2]
			stack = append(stack, stackNode{depth: second.depth - 1, hash: branch})
			nodeLeaves = append(nodeLeaves, merged)
		}
	}

	if len(stack) != 1 || stack[0].depth != 0 {
		return nil, errTaprootFinalize(errUnbalancedTree{leafCount: len(padded)})
	}

	merkleRoot := stack[0].hash

	outputKey, oddY, err := computeTaprootOutputKey(internalKey, merkleRoot[:])
	if err != nil {
		return nil, errTaprootFinalize(err)
	}

	proofs := make([]LeafProof, n)
	for i := 0; i < n; i++ {
		// siblings were appended as each merge happened, deepest first,
		// which is the leaf-to-root order control blocks list them in.
		sib := append([][32]byte(nil), proofSiblings[i]...)
		proofs[i] = LeafProof{
			LeafVersion: tapLeafVersion,
			Script:      leaves[i].Script,
			Siblings:    sib,
		}
	}

	return &TapTree{
		OutputKey:     outputKey,
		OutputKeyOddY: oddY,
		MerkleRoot:    merkleRoot,
		Proofs:        proofs,
	}, nil
}

type errUnbalancedTree struct{ leafCount int }

func (e errUnbalancedTree) Error() string {
	return "leaf set does not form a balanced power-of-two tap-tree"
}

// ControlBlock serializes the BIP-341 control block for leaf i of tt.
func (tt *TapTree) ControlBlock(internalKey *btcec.PublicKey, leafIndex int) []byte {
	proof := tt.Proofs[leafIndex]
	parity := byte(0)
	if tt.OutputKeyOddY {
		parity = 1
	}
	out := make([]byte, 0, 33+32*len(proof.Siblings))
	out = append(out, proof.LeafVersion|parity)
	out = append(out, schnorr.SerializePubKey(internalKey)...)
	for _, s := range proof.Siblings {
		out = append(out, s[:]...)
	}
	return out
}

func tapLeafHash(leafVersion byte, script []byte) [32]byte {
	buf := make([]byte, 0, 1+5+len(script))
	buf = append(buf, leafVersion)
	buf = appendCompactSize(buf, uint64(len(script)))
	buf = append(buf, script...)
	return taggedHash("TapLeaf", buf)
}

func tapBranchHash(a, b [32]byte) [32]byte {
	if lexCompare(a, b) <= 0 {
		return taggedHash("TapBranch", a[:], b[:])
	}
	return taggedHash("TapBranch", b[:], a[:])
}

func lexCompare(a, b [32]byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func appendCompactSize(buf []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(buf, byte(n))
	case n <= 0xffff:
		return append(buf, 0xfd, byte(n), byte(n>>8))
	case n <= 0xffffffff:
		return append(buf, 0xfe, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	default:
		return append(buf, 0xff, byte(n), byte(n>>8), byte(n>>16), byte(n>>24),
			byte(n>>32), byte(n>>40), byte(n>>48), byte(n>>56))
	}
}

// taggedHash implements the BIP-340/341 tagged hash construction used
// throughout the tap-tree and tap-tweak derivations.
func taggedHash(tag string, msgs ...[]byte) [32]byte {
	tagHash := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	for _, m := range msgs {
		h.Write(m)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// computeTaprootOutputKey applies the BIP-341 tap-tweak to internalKey
// given a merkle root, returning the tweaked output key and whether it has
// odd Y (needed for the control block's parity bit). A nil or zero-length
// merkleRoot commits to no script tree at all (BIP-86 key-path-only,
// matching txscript.ComputeTaprootKeyNoScript's own convention of tagged-
// hashing the internal key alone); this is distinct from a present but
// all-zero 32-byte root, which would commit to a specific (degenerate)
// script tree instead.
func computeTaprootOutputKey(internalKey *btcec.PublicKey, merkleRoot []byte) (*btcec.PublicKey, bool, error) {
	internalXOnly := schnorr.SerializePubKey(internalKey)
	tweakHash := taggedHash("TapTweak", internalXOnly, merkleRoot)

	var tweakScalar btcec.ModNScalar
	tweakScalar.SetByteSlice(tweakHash[:])

	lifted, err := schnorr.ParsePubKey(internalXOnly)
	if err != nil {
		return nil, false, err
	}

	var internalJacobian, tweakPoint, result btcec.JacobianPoint
	lifted.AsJacobian(&internalJacobian)
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)
	btcec.AddNonConst(&internalJacobian, &tweakPoint, &result)
	result.ToAffine()

	oddY := result.Y.IsOdd()
	outputKey := btcec.NewPublicKey(&result.X, &result.Y)
	return outputKey, oddY, nil
}

// ComputeTaprootKeyNoScript applies the BIP-86 key-path-only tap-tweak to
// internalKey (no script tree committed), returning the tweaked output key
// a caller must both build the witness program from and sign under.
func ComputeTaprootKeyNoScript(internalKey *btcec.PublicKey) (*btcec.PublicKey, bool, error) {
	return computeTaprootOutputKey(internalKey, nil)
}
