package graph

// WinternitzPublicKey is the public side of a Winternitz one-time
// signature: one hash-chain tip per digit (message digits followed by
// checksum digits), plus the key-manager derivation index that produced
// it. It lives in this package, rather than pkg/keymanager, because
// pkg/graph/script.go needs it to build the verification ladder in a
// tapleaf and pkg/keymanager must not be imported back into pkg/graph.
type WinternitzPublicKey struct {
	DerivationIndex uint32

	// MessageDigits is how many digits encode the signed message itself;
	// ChecksumDigits is how many more encode its checksum, both expressed
	// in units of DigitBits bits.
	MessageDigits  int
	ChecksumDigits int
	DigitBits      int

	// Hashes holds one hash-chain tip per digit, ordered with the
	// message digits first and the checksum digits last — the order
	// appendWinternitzVerify consumes them in, matching the source's
	// ots_checksig digit loop.
	Hashes [][]byte
}

// TotalDigits is the combined message+checksum digit count.
func (k *WinternitzPublicKey) TotalDigits() int {
	return k.MessageDigits + k.ChecksumDigits
}

// Base is the per-digit alphabet size, i.e. the hash-chain length.
func (k *WinternitzPublicKey) Base() int {
	return 1 << uint(k.DigitBits)
}

// BitsPerDigit is the number of message bits one digit encodes.
func (k *WinternitzPublicKey) BitsPerDigit() int {
	return k.DigitBits
}

// WinternitzSignature is one signed message: for every digit, the digit
// value and the hash-chain preimage at that many steps from the bottom,
// in the same order as WinternitzPublicKey.Hashes.
type WinternitzSignature struct {
	DerivationIndex uint32
	Digits          []byte
	Preimages       [][]byte
}
