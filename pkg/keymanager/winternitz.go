package keymanager

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// digitBits is the bit width of one Winternitz digit for WinternitzBase16,
// matching appendWinternitzVerify's OP_MIN-by-base clamp in pkg/graph.
const digitBits = 4

// deriveWinternitzSeed derives the per-digit hash-chain root: a distinct,
// unpredictable 32-byte secret for each (derivation index, digit index)
// pair, computed from the manager's master seed with HMAC-SHA256 the same
// way deriveChildren in the teacher's hdkeychain helper walks a BIP-32
// derivation path deterministically from one root.
func deriveWinternitzSeed(masterSeed []byte, idx uint32, digitIndex int) []byte {
	mac := hmac.New(sha256.New, masterSeed)
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], idx)
	binary.BigEndian.PutUint32(buf[4:8], uint32(digitIndex))
	mac.Write(buf[:])
	return mac.Sum(nil)
}

// hashChain applies RIPEMD160(SHA256(.)) (btcutil.Hash160, the same
// digest txscript.OP_HASH160 verifies on-chain) n times to seed.
func hashChain(seed []byte, n int) []byte {
	cur := seed
	for i := 0; i < n; i++ {
		cur = btcutil.Hash160(cur)
	}
	return cur
}

// deriveWinternitzKey builds the public key (hash-chain tips) and the
// matching private seeds for a message of msgLen bytes at derivation
// index idx. messageDigits covers the message itself; checksumDigits
// covers the worst-case checksum of an all-zero-digit message, both in
// units of digitBits bits, mirroring the message/checksum split
// appendWinternitzVerify expects (message digits first, checksum digits
// last).
func deriveWinternitzKey(masterSeed []byte, msgLen int, idx uint32) (*graph.WinternitzPublicKey, [][]byte) {
	messageDigits := (msgLen*8 + digitBits - 1) / digitBits
	base := 1 << digitBits
	maxChecksum := messageDigits * (base - 1)
	checksumDigits := 1
	for (1 << uint(checksumDigits*digitBits)) <= maxChecksum {
		checksumDigits++
	}

	total := messageDigits + checksumDigits
	seeds := make([][]byte, total)
	hashes := make([][]byte, total)
	for i := 0; i < total; i++ {
		seeds[i] = deriveWinternitzSeed(masterSeed, idx, i)
		hashes[i] = hashChain(seeds[i], base-1)
	}

	pub := &graph.WinternitzPublicKey{
		DerivationIndex: idx,
		MessageDigits:   messageDigits,
		ChecksumDigits:  checksumDigits,
		DigitBits:       digitBits,
		Hashes:          hashes,
	}
	return pub, seeds
}

// signWinternitzDigits reveals, for each digit value in digits (message
// digits first, checksum digits last, matching deriveWinternitzKey), the
// hash-chain preimage digit steps up from the root seed; base-1-digit
// further OP_HASH160 applications reach the stored public tip.
func signWinternitzDigits(seeds [][]byte, digits []byte, base int) [][]byte {
	preimages := make([][]byte, len(digits))
	for i, d := range digits {
		preimages[i] = hashChain(seeds[i], int(d))
	}
	return preimages
}

// messageToDigits splits msg into big-endian digitBits-wide digits
// (most-significant digit first) and appends the checksum digits the
// verification script recomputes, matching the checksum arithmetic in
// appendWinternitzVerify.
func messageToDigits(msg []byte, messageDigits, checksumDigits, base int) []byte {
	digits := make([]byte, messageDigits+checksumDigits)
	bitBuf, bitLen := uint32(0), 0
	msgIdx := 0
	for i := 0; i < messageDigits; i++ {
		for bitLen < digitBits && msgIdx < len(msg) {
			bitBuf = bitBuf<<8 | uint32(msg[msgIdx])
			bitLen += 8
			msgIdx++
		}
		shift := bitLen - digitBits
		if shift < 0 {
			shift = 0
		}
		digits[i] = byte((bitBuf >> uint(shift)) & uint32(base-1))
		bitLen -= digitBits
		if bitLen < 0 {
			bitLen = 0
		}
	}

	checksum := 0
	for i := 0; i < messageDigits; i++ {
		checksum += base - 1 - int(digits[i])
	}
	for i := checksumDigits - 1; i >= 0; i-- {
		digits[messageDigits+i] = byte(checksum & (base - 1))
		checksum >>= digitBits
	}
	return digits
}
