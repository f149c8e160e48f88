package fec

// hammingCoder implements a Hamming(12,8) single-error-correcting code,
// one codeword per input byte, packed into two output bytes. This
// stands in for the spec's lightweight "ldpc" mode (§4.2, §6): cheap,
// single-bit-correcting, no interleaving of its own (the channel
// package's block interleaver handles burst spreading).
//
// Codeword positions are 1-indexed, 1..12. Parity bits sit at the
// power-of-two positions (1,2,4,8); data bits fill the rest in order
// (3,5,6,7,9,10,11,12). Parity bit p covers every position whose
// binary representation has p's bit set.
type hammingCoder struct{}

var hammingDataPositions = [8]int{3, 5, 6, 7, 9, 10, 11, 12}
var hammingParityPositions = [4]int{1, 2, 4, 8}

func hammingEncodeByte(b byte) (byte, byte) {
	var cw [13]byte
	for i, pos := range hammingDataPositions {
		cw[pos] = (b >> uint(i)) & 1
	}
	for _, p := range hammingParityPositions {
		var parity byte
		for pos := 1; pos <= 12; pos++ {
			if pos == p {
				continue
			}
			if pos&p != 0 {
				parity ^= cw[pos]
			}
		}
		cw[p] = parity
	}
	return packHamming(cw)
}

// hammingDecodeByte corrects at most one bit error and returns the
// original data byte plus whether a correction was applied.
func hammingDecodeByte(b0, b1 byte) (data byte, corrected bool) {
	cw := unpackHamming(b0, b1)

	var syndrome int
	for _, p := range hammingParityPositions {
		var parity byte
		for pos := 1; pos <= 12; pos++ {
			if pos&p != 0 {
				parity ^= cw[pos]
			}
		}
		if parity != 0 {
			syndrome += p
		}
	}
	if syndrome != 0 && syndrome <= 12 {
		cw[syndrome] ^= 1
		corrected = true
	}

	for i, pos := range hammingDataPositions {
		data |= cw[pos] << uint(i)
	}
	return data, corrected
}

func packHamming(cw [13]byte) (byte, byte) {
	var b0, b1 byte
	for pos := 1; pos <= 8; pos++ {
		b0 |= cw[pos] << uint(8-pos)
	}
	for pos := 9; pos <= 12; pos++ {
		b1 |= cw[pos] << uint(12-pos+4)
	}
	return b0, b1
}

func unpackHamming(b0, b1 byte) [13]byte {
	var cw [13]byte
	for pos := 1; pos <= 8; pos++ {
		cw[pos] = (b0 >> uint(8-pos)) & 1
	}
	for pos := 9; pos <= 12; pos++ {
		cw[pos] = (b1 >> uint(12-pos+4)) & 1
	}
	return cw
}

func (hammingCoder) Encode(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		b0, b1 := hammingEncodeByte(b)
		out = append(out, b0, b1)
	}
	return out
}

func (hammingCoder) Decode(data []byte) ([]byte, int, error) {
	n := len(data) / 2
	out := make([]byte, n)
	corrected := 0
	for i := 0; i < n; i++ {
		b, wasCorrected := hammingDecodeByte(data[2*i], data[2*i+1])
		out[i] = b
		if wasCorrected {
			corrected++
		}
	}
	return out, corrected, nil
}
