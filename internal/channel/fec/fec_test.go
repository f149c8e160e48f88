package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGFInverseRoundTrip(t *testing.T) {
	for a := 1; a < 256; a++ {
		inv := gfInv(byte(a))
		assert.Equal(t, byte(1), gfMul(byte(a), inv), "a=%d", a)
	}
}

func TestGFPowMatchesRepeatedMul(t *testing.T) {
	for a := 1; a < 256; a++ {
		acc := byte(1)
		for p := 0; p < 9; p++ {
			assert.Equal(t, acc, gfPow(byte(a), p), "a=%d p=%d", a, p)
			acc = gfMul(acc, byte(a))
		}
	}
}

func TestRSEncodeDecodeNoErrors(t *testing.T) {
	data := make([]byte, RSMaxData)
	for i := range data {
		data[i] = byte(i * 7)
	}
	block := rsEncodeBlock(data)
	out, corrected, err := rsDecodeBlock(block)
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)
	assert.Equal(t, data, out)
}

func TestRSCorrectsErrorsWithinCapacity(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i * 3)
	}
	block := rsEncodeBlock(data)

	corruptedPositions := []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 99, 105, 120}
	require.LessOrEqual(t, len(corruptedPositions), RSParitySymbols/2)
	for _, p := range corruptedPositions {
		block[p] ^= 0xFF
	}

	out, corrected, err := rsDecodeBlock(block)
	require.NoError(t, err)
	assert.Equal(t, len(corruptedPositions), corrected)
	assert.Equal(t, data, out)
}

func TestRSTooManyErrorsReported(t *testing.T) {
	data := make([]byte, RSMaxData)
	for i := range data {
		data[i] = byte(i)
	}
	block := rsEncodeBlock(data)
	for i := 0; i < RSParitySymbols; i++ { // well past the t=16 correction limit
		block[i*3] ^= 0xAA
	}

	out, _, err := rsDecodeBlock(block)
	if err == nil {
		assert.NotEqual(t, data, out)
	}
}

func TestHammingRoundTripNoErrors(t *testing.T) {
	for b := 0; b < 256; b++ {
		b0, b1 := hammingEncodeByte(byte(b))
		out, corrected := hammingDecodeByte(b0, b1)
		assert.Equal(t, byte(b), out)
		assert.False(t, corrected)
	}
}

func TestHammingCorrectsSingleBitFlip(t *testing.T) {
	for b := 0; b < 256; b++ {
		b0, b1 := hammingEncodeByte(byte(b))
		for bit := 0; bit < 12; bit++ {
			fb0, fb1 := b0, b1
			if bit < 8 {
				fb0 ^= 1 << uint(7-bit)
			} else {
				fb1 ^= 1 << uint(7-(bit-8))
			}
			out, corrected := hammingDecodeByte(fb0, fb1)
			assert.Equal(t, byte(b), out, "byte=%d bit=%d", b, bit)
			assert.True(t, corrected, "byte=%d bit=%d", b, bit)
		}
	}
}

func TestConvEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(rt, "n")
		dataBits := make([]byte, n)
		for i := range dataBits {
			dataBits[i] = byte(rapid.IntRange(0, 1).Draw(rt, "bit"))
		}
		encoded := convEncodeBits(dataBits)
		decoded := convDecodeBits(encoded)
		assert.Equal(t, dataBits, decoded)
	})
}

func TestConvDecodeCorrectsIsolatedErrors(t *testing.T) {
	dataBits := make([]byte, 40)
	for i := range dataBits {
		dataBits[i] = byte(i % 2)
	}
	encoded := convEncodeBits(dataBits)
	// Flip a handful of isolated output bits; the trellis should still
	// find the maximum-likelihood (all-correct) path.
	for _, i := range []int{3, 17, 40, 55} {
		encoded[i] ^= 1
	}
	decoded := convDecodeBits(encoded)
	assert.Equal(t, dataBits, decoded)
}

func TestCoderRoundTripAllModes(t *testing.T) {
	for _, mode := range []Mode{ModeNone, ModeLDPC, ModeRS} {
		t.Run(mode.String(), func(t *testing.T) {
			coder := New(mode)
			data := []byte("the quick brown fox jumps over the lazy dog, 0123456789")
			encoded := coder.Encode(data)
			out, _, err := coder.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestRSConvCoderHandlesMultiBlockData(t *testing.T) {
	data := make([]byte, 500) // spans multiple 223-byte RS blocks
	for i := range data {
		data[i] = byte(i * 13)
	}
	coder := New(ModeRS)
	encoded := coder.Encode(data)
	out, _, err := coder.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
