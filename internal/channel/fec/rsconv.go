package fec

import "encoding/binary"

// rsConvCoder concatenates RS(255,223) with the rate-1/2 K=7
// convolutional code (§4.2 fec_mode=rs): RS corrects the burst/residual
// errors the convolutional code's soft decisions leave behind in a
// genuine concatenated system; here, without a soft channel model, it
// mainly gives the convolutional layer's hard-decision output a second,
// algebraic correction pass.
//
// RS operates on fixed 223-byte data blocks (the final block
// zero-padded) so block boundaries on the wire are a simple fixed
// stride, with a 4-byte length prefix ahead of the data recording the
// true length to strip at decode time.
type rsConvCoder struct{}

func (rsConvCoder) Encode(data []byte) []byte {
	prefixed := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(prefixed, uint32(len(data)))
	copy(prefixed[4:], data)

	numBlocks := (len(prefixed) + RSMaxData - 1) / RSMaxData
	if numBlocks == 0 {
		numBlocks = 1
	}
	padded := make([]byte, numBlocks*RSMaxData)
	copy(padded, prefixed)

	rsOut := make([]byte, 0, numBlocks*RSBlockSize)
	for i := 0; i < numBlocks; i++ {
		block := padded[i*RSMaxData : (i+1)*RSMaxData]
		rsOut = append(rsOut, rsEncodeBlock(block)...)
	}

	dataBits := bitsFromBytes(rsOut)
	convBits := convEncodeBits(dataBits)
	return bytesFromBits(convBits)
}

func (rsConvCoder) Decode(data []byte) ([]byte, int, error) {
	received := bitsFromBytes(data)
	decodedBits := convDecodeBits(received)
	rsBytes := bytesFromBits(decodedBits)

	totalCorrected := 0
	decodedPrefixed := make([]byte, 0, len(rsBytes))
	for i := 0; i+RSBlockSize <= len(rsBytes); i += RSBlockSize {
		block := rsBytes[i : i+RSBlockSize]
		chunk, corrected, err := rsDecodeBlock(block)
		if err != nil {
			return nil, totalCorrected, err
		}
		totalCorrected += corrected
		decodedPrefixed = append(decodedPrefixed, chunk...)
	}

	if len(decodedPrefixed) < 4 {
		return nil, totalCorrected, ErrRSUncorrectable
	}
	length := binary.BigEndian.Uint32(decodedPrefixed[:4])
	if int(4+length) > len(decodedPrefixed) {
		return nil, totalCorrected, ErrRSUncorrectable
	}
	out := make([]byte, length)
	copy(out, decodedPrefixed[4:4+length])
	return out, totalCorrected, nil
}
