package keymanager

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveWinternitzSeedDiffersPerDigit(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	s0 := deriveWinternitzSeed(seed, 0, 0)
	s1 := deriveWinternitzSeed(seed, 0, 1)
	require.NotEqual(t, s0, s1)

	s0Again := deriveWinternitzSeed(seed, 0, 0)
	require.Equal(t, s0, s0Again)
}

func TestHashChainIsIterative(t *testing.T) {
	seed := bytes.Repeat([]byte{0xaa}, 32)
	require.Equal(t, seed, hashChain(seed, 0))

	one := hashChain(seed, 1)
	two := hashChain(seed, 2)
	require.Equal(t, two, hashChain(one, 1))
}

func TestMessageToDigitsChecksumDecreasesWithHigherDigits(t *testing.T) {
	messageDigits, checksumDigits, base := 4, 2, 16

	allZero := messageToDigits(bytes.Repeat([]byte{0x00}, 2), messageDigits, checksumDigits, base)
	allMax := messageToDigits(bytes.Repeat([]byte{0xff}, 2), messageDigits, checksumDigits, base)

	checksumOf := func(digits []byte) int {
		v := 0
		for i := 0; i < checksumDigits; i++ {
			v = v<<digitBits | int(digits[messageDigits+i])
		}
		return v
	}

	require.Greater(t, checksumOf(allZero), checksumOf(allMax))
}
