// Package fec implements the forward error correction coders named by
// the channel codec: a transparent passthrough, a Hamming(12,8)
// single-error-correcting code standing in for the spec's lightweight
// LDPC mode, and a concatenated Reed-Solomon(255,223) plus rate-1/2
// convolutional (Viterbi, K=7) coder for the strong mode.
package fec

import "fmt"

// Mode selects a forward error correction scheme (§4.2, §6).
type Mode byte

const (
	ModeNone Mode = iota
	ModeLDPC      // Hamming(12,8) SEC, one correctable bit per coded byte
	ModeRS        // RS(255,223) concatenated with a rate-1/2 K=7 convolutional code
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeLDPC:
		return "ldpc"
	case ModeRS:
		return "rs"
	default:
		return fmt.Sprintf("fec.Mode(%d)", byte(m))
	}
}

// Coder encodes and decodes a byte stream under a particular FEC
// scheme. Decode returns the number of symbol errors it corrected
// along the way (best-effort, 0 for schemes that don't expose a count).
type Coder interface {
	Encode(data []byte) []byte
	Decode(data []byte) (out []byte, corrected int, err error)
}

// New returns the Coder for mode.
func New(mode Mode) Coder {
	switch mode {
	case ModeLDPC:
		return hammingCoder{}
	case ModeRS:
		return rsConvCoder{}
	default:
		return noneCoder{}
	}
}
