package channel

import (
	"bytes"
	"errors"
)

// ASM is the attached sync marker prefixed to the randomized block
// when the CCSDS variant is active (§6). This is the CCSDS-standard
// 0x1ACFFC1D marker, the conventional choice the spec's "4-byte CCSDS
// frame delimiter" glossary entry describes.
var ASM = [4]byte{0x1A, 0xCF, 0xFC, 0x1D}

// ErrASMMismatch indicates the leading bytes of a received frame
// didn't match ASM exactly (§4.2: "The ASM must match exactly;
// otherwise decoding fails").
var ErrASMMismatch = errors.New("channel: ASM mismatch")

// PrependASM prefixes data with the sync marker.
func PrependASM(data []byte) []byte {
	out := make([]byte, 0, len(ASM)+len(data))
	out = append(out, ASM[:]...)
	out = append(out, data...)
	return out
}

// StripASM validates and removes a leading sync marker.
func StripASM(data []byte) ([]byte, error) {
	if len(data) < len(ASM) || !bytes.Equal(data[:len(ASM)], ASM[:]) {
		return nil, ErrASMMismatch
	}
	return data[len(ASM):], nil
}
